package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gclaussn/go-flow/engine"
)

const (
	DefaultBackoff           = 100 * time.Millisecond // Default delay before the first retry.
	DefaultBackoffMultiplier = 2.0                    // Default factor, the delay grows with every further retry.
	DefaultMaxBackoff        = 10 * time.Second       // Default upper bound of a retry delay.
)

// Error codes of task runs, failed by a worker.
const (
	ErrorCodeContextDone      = "ContextDone"      // The context was done, before the task run ended.
	ErrorCodeEmitFailure      = "EmitFailure"      // A progress event could not be appended.
	ErrorCodeMissingScript    = "MissingScript"    // The element defines no script extension.
	ErrorCodeRetriesExhausted = "RetriesExhausted" // The last attempt of a service task failed.
	ErrorCodeScriptFailure    = "ScriptFailure"
	ErrorCodeSourceFailure    = "SourceFailure"
	ErrorCodeToolFailure      = "ToolFailure"
)

// NewTaskError creates a business failure, which is not retried. The task run fails with the error code,
// which can be caught by an error boundary event or an event sub-process.
func NewTaskError(code string, message string) error {
	return TaskError{Code: code, Message: message}
}

func NewOptions() Options {
	return Options{
		Backoff:           DefaultBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxBackoff:        DefaultMaxBackoff,
	}
}

// Handler implements the business logic of a service task.
//
// A returned [TaskError] fails the task run immediately. Any other error is retried, until the retry
// limit of the element is reached.
type Handler func(TaskContext) error

type Options struct {
	Backoff           time.Duration // Delay before the first retry.
	BackoffMultiplier float64       // Factor, the delay grows with every further retry.
	MaxBackoff        time.Duration // Upper bound of a retry delay.

	OnRetry func(TaskContext, error) // Called before a failed attempt is retried.
}

func (o Options) Validate() error {
	if o.Backoff < 0 {
		return errors.New("backoff must be greater than or equal to 0")
	}
	if o.BackoffMultiplier < 1 {
		return errors.New("backoff multiplier must be greater than or equal to 1")
	}
	if o.MaxBackoff < o.Backoff {
		return errors.New("max backoff must be greater than or equal to backoff")
	}
	return nil
}

// NewService creates an executor, which runs a handler with bounded retries.
//
// The retry limit is taken from the element's properties. Before every retry, the RETRY checkpoint is polled,
// so that a cancellation is honored between attempts, never within an attempt.
func NewService(handler Handler, customizers ...func(*Options)) (*ServiceExecutor, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	return &ServiceExecutor{handler: handler, options: options}, nil
}

// Service creates an executor with default options. See [NewService].
func Service(handler Handler) engine.TaskExecutor {
	executor, err := NewService(handler)
	if err != nil {
		panic(err)
	}
	return executor
}

type ServiceExecutor struct {
	handler Handler
	options Options
}

func (s *ServiceExecutor) Execute(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
	retryLimit := execution.Properties().RetryLimit
	backoff := s.options.Backoff

	for attempt := 0; ; attempt++ {
		if attempt != 0 {
			if err := sleep(ctx, execution.CancelRequested(), backoff); err != nil {
				return engine.Failed(ErrorCodeContextDone, err.Error())
			}
			if outcome, ok := cancelled(execution.Checkpoint(engine.CheckpointRetry), ""); ok {
				return outcome
			}
			backoff = s.nextBackoff(backoff)
		}

		tc := TaskContext{
			Execution: execution,

			ctx:       ctx,
			attempt:   attempt,
			variables: Variables{},
		}

		err := s.handler(tc)
		if err == nil {
			return engine.Completed(tc.variables)
		}

		if outcome, ok := cancelled(err, ""); ok {
			return outcome
		}

		var taskErr TaskError
		if errors.As(err, &taskErr) {
			return engine.Failed(taskErr.Code, taskErr.Message)
		}

		if ctx.Err() != nil {
			return engine.Failed(ErrorCodeContextDone, ctx.Err().Error())
		}

		if attempt >= retryLimit {
			return engine.Failed(ErrorCodeRetriesExhausted, fmt.Sprintf("failed after %d attempts: %v", attempt+1, err))
		}

		execution.Logger().Warn("attempt failed", "attempt", attempt+1, "retryLimit", retryLimit, "err", err)

		if s.options.OnRetry != nil {
			s.options.OnRetry(tc, err)
		}
	}
}

func (s *ServiceExecutor) nextBackoff(backoff time.Duration) time.Duration {
	next := time.Duration(float64(backoff) * s.options.BackoffMultiplier)
	if next > s.options.MaxBackoff {
		return s.options.MaxBackoff
	}
	return next
}

// TaskContext provides access to the task run, a [Handler] is executed for.
type TaskContext struct {
	Execution engine.Execution

	ctx       context.Context
	attempt   int
	variables Variables
}

// Attempt returns the number of the current attempt, starting with 0.
func (tc TaskContext) Attempt() int {
	return tc.attempt
}

func (tc TaskContext) Context() context.Context {
	return tc.ctx
}

// Variables returns the process variables, taken when the task run started.
func (tc TaskContext) Variables() Variables {
	return Variables(tc.Execution.Variables())
}

// SetVariables sets variables, which are merged into the process variables when the task run completes.
func (tc TaskContext) SetVariables(variables Variables) {
	for name, value := range variables {
		tc.variables.Put(name, value)
	}
}

// TaskError is a business failure, which fails a task run without retry.
type TaskError struct {
	Code    string
	Message string
}

func (e TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func cancelled(err error, partialResult string) (engine.TaskOutcome, bool) {
	cancelRequest, ok := engine.IsCancelRequest(err)
	if !ok {
		return engine.TaskOutcome{}, false
	}
	return engine.Cancelled(partialResult, cancelRequest.Reason), true
}

// sleep waits for the given duration. It returns early, when a cancellation is requested or the context is done.
func sleep(ctx context.Context, cancelRequested <-chan struct{}, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-cancelRequested:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
