package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/model"
	"github.com/hashicorp/go-hclog"
)

// A TaskExecutor executes the runs of service and agent tasks.
//
// Execute must return, when the cancel signal is honored at a [Checkpoint] or when the context is done.
// The context is done, when the engine terminates a task run after the cancel grace period or shuts down.
type TaskExecutor interface {
	Execute(context.Context, Execution) TaskOutcome
}

// TaskExecutorFunc is an adapter to allow the use of ordinary functions as task executors.
type TaskExecutorFunc func(context.Context, Execution) TaskOutcome

func (f TaskExecutorFunc) Execute(ctx context.Context, execution Execution) TaskOutcome {
	return f(ctx, execution)
}

// Execution provides access to a task run, while it is executed.
type Execution interface {
	ProcessInstanceId() string
	ElementId() string
	ThreadId() string
	TaskRunId() string
	CorrelationId() string

	// Properties returns the element's properties, after configuration overlays have been applied.
	Properties() model.Properties

	// Variables returns a snapshot of the process variables, taken when the task run started.
	Variables() map[string]any

	// Checkpoint polls the cancel signal. It returns a [CancelRequest], if a cancellation has been
	// requested, which the executor should honor by returning a [Cancelled] outcome.
	Checkpoint(Checkpoint) error

	// CancelRequested returns a channel, which is closed when a cancellation has been requested. Executors,
	// which wait, select on it to reach the next checkpoint without delay.
	CancelRequested() <-chan struct{}

	// Emit appends a progress event like thinking, tool.start or message.delta to the task run's event log.
	Emit(eventlog.EventKind, eventlog.Payload) error

	// AwaitSignal blocks until the task run is resolved via [Engine.CompleteTask], the cancel signal is
	// raised or the context is done.
	AwaitSignal(context.Context) (Signal, error)

	Logger() hclog.Logger
}

// Checkpoint is a point, at which an executor polls the cancel signal.
type Checkpoint int

const (
	CheckpointChunk    Checkpoint = iota + 1 // Before a chunk of a stream is processed.
	CheckpointRetry                          // Before a retry attempt.
	CheckpointToolCall                       // Before a tool is invoked.
)

func (v Checkpoint) String() string {
	switch v {
	case CheckpointChunk:
		return "CHUNK"
	case CheckpointRetry:
		return "RETRY"
	case CheckpointToolCall:
		return "TOOL_CALL"
	default:
		return "UNKNOWN"
	}
}

// CancelRequest is returned by [Execution.Checkpoint], when a task run should be cancelled.
type CancelRequest struct {
	Checkpoint Checkpoint
	Reason     string
}

func (r CancelRequest) Error() string {
	return fmt.Sprintf("cancellation requested at checkpoint %s: %s", r.Checkpoint, r.Reason)
}

// IsCancelRequest determines if an error is or wraps a [CancelRequest].
func IsCancelRequest(err error) (CancelRequest, bool) {
	var cancelRequest CancelRequest
	if errors.As(err, &cancelRequest) {
		return cancelRequest, true
	}
	return CancelRequest{}, false
}

// Signal resolves a task run, which awaits an external completion.
type Signal struct {
	ErrorCode    string
	ErrorMessage string
	Variables    map[string]any
}

type OutcomeKind int

const (
	OutcomeCancelled OutcomeKind = iota + 1
	OutcomeCompleted
	OutcomeFailed
)

func (v OutcomeKind) String() string {
	switch v {
	case OutcomeCancelled:
		return "CANCELLED"
	case OutcomeCompleted:
		return "COMPLETED"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// TaskOutcome is the result of a task run.
type TaskOutcome struct {
	Kind OutcomeKind

	Variables map[string]any // Completed only.

	ErrorCode string // Failed only.
	Message   string // Failed only.

	PartialResult string // Cancelled only.
	Reason        string // Cancelled only.
}

func (v TaskOutcome) String() string {
	switch v.Kind {
	case OutcomeCompleted:
		return fmt.Sprintf("%s %v", v.Kind, v.Variables)
	case OutcomeFailed:
		return fmt.Sprintf("%s %s: %s", v.Kind, v.ErrorCode, v.Message)
	default:
		return fmt.Sprintf("%s %s", v.Kind, v.Reason)
	}
}

func Completed(variables map[string]any) TaskOutcome {
	return TaskOutcome{Kind: OutcomeCompleted, Variables: variables}
}

func Failed(errorCode string, message string) TaskOutcome {
	return TaskOutcome{Kind: OutcomeFailed, ErrorCode: errorCode, Message: message}
}

func Cancelled(partialResult string, reason string) TaskOutcome {
	return TaskOutcome{Kind: OutcomeCancelled, PartialResult: partialResult, Reason: reason}
}
