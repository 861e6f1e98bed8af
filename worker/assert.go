package worker

import (
	"context"
	"maps"
	"runtime/debug"
	"sync"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/model"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// assertTimeout limits the time, an assertion waits for an executor.
const assertTimeout = 5 * time.Second

// ExecutionOptions describe the task run, an executor is asserted with.
type ExecutionOptions struct {
	ProcessInstanceId string
	ElementId         string
	Properties        model.Properties
	Variables         map[string]any
}

// Assert executes an executor in a separate goroutine, without an engine, and asserts its progress.
func Assert(t *testing.T, executor engine.TaskExecutor, customizers ...func(*ExecutionOptions)) *ExecutionAssert {
	options := ExecutionOptions{
		ProcessInstanceId: uuid.NewString(),
		ElementId:         "task",
	}
	for _, customizer := range customizers {
		customizer(&options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	execution := &testExecution{
		options:       options,
		threadId:      uuid.NewSHA1(uuid.NameSpaceURL, []byte(options.ProcessInstanceId+"/"+options.ElementId)).String(),
		taskRunId:     uuid.NewString(),
		correlationId: uuid.NewString(),

		cancelCh: make(chan struct{}),
		signal:   make(chan engine.Signal, 1),
		emitted:  make(chan struct{}, 1),
	}

	a := &ExecutionAssert{
		t:         t,
		execution: execution,
		cancelCtx: cancel,
		outcome:   make(chan engine.TaskOutcome, 1),
	}

	go func() {
		a.outcome <- executor.Execute(ctx, execution)
	}()

	return a
}

type ExecutionAssert struct {
	t         *testing.T
	execution *testExecution
	cancelCtx context.CancelFunc
	outcome   chan engine.TaskOutcome

	ended    bool
	received engine.TaskOutcome
}

// AwaitEvents waits until at least n events of the given kind have been emitted.
func (a *ExecutionAssert) AwaitEvents(kind eventlog.EventKind, n int) []eventlog.Event {
	timeout := time.After(assertTimeout)
	for {
		var events []eventlog.Event
		for _, event := range a.Events() {
			if event.Kind == kind {
				events = append(events, event)
			}
		}
		if len(events) >= n {
			return events
		}

		select {
		case <-a.execution.emitted:
		case <-timeout:
			a.Fatalf("expected %d %s events, but got %d", n, kind, len(events))
		}
	}
}

// Cancel raises the cancel signal, which is observed at the next checkpoint.
func (a *ExecutionAssert) Cancel(reason string) {
	a.execution.cancelOnce.Do(func() {
		a.execution.mutex.Lock()
		a.execution.reason = reason
		a.execution.mutex.Unlock()
		close(a.execution.cancelCh)
	})
}

// CancelContext cancels the context of the execution, like an engine that terminates a task run.
func (a *ExecutionAssert) CancelContext() {
	a.cancelCtx()
}

// Checkpoints returns the checkpoints, polled by the executor.
func (a *ExecutionAssert) Checkpoints() []engine.Checkpoint {
	a.execution.mutex.Lock()
	defer a.execution.mutex.Unlock()
	return append([]engine.Checkpoint(nil), a.execution.checkpoints...)
}

func (a *ExecutionAssert) CorrelationId() string {
	return a.execution.correlationId
}

// Events returns the emitted events.
func (a *ExecutionAssert) Events() []eventlog.Event {
	a.execution.mutex.Lock()
	defer a.execution.mutex.Unlock()
	return append([]eventlog.Event(nil), a.execution.events...)
}

func (a *ExecutionAssert) Fatalf(format string, args ...any) {
	a.t.Fatalf(format+"\n%s", append(args, debug.Stack())...)
}

// Outcome waits for the executor to return.
func (a *ExecutionAssert) Outcome() engine.TaskOutcome {
	if a.ended {
		return a.received
	}

	select {
	case outcome := <-a.outcome:
		a.ended = true
		a.received = outcome
		return outcome
	case <-time.After(assertTimeout):
		a.Fatalf("executor has not returned within %s", assertTimeout)
		return engine.TaskOutcome{}
	}
}

// Signal resolves an executor, that awaits an external completion.
func (a *ExecutionAssert) Signal(signal engine.Signal) {
	select {
	case a.execution.signal <- signal:
	default:
		a.Fatalf("signal has already been sent")
	}
}

// Snapshot folds the emitted events.
func (a *ExecutionAssert) Snapshot() eventlog.Snapshot {
	return eventlog.Fold(a.execution.threadId, a.Events())
}

// testExecution implements [engine.Execution] without an engine.
type testExecution struct {
	options       ExecutionOptions
	threadId      string
	taskRunId     string
	correlationId string

	cancelCh   chan struct{}
	cancelOnce sync.Once
	signal     chan engine.Signal
	emitted    chan struct{}

	mutex       sync.Mutex
	reason      string
	events      []eventlog.Event
	checkpoints []engine.Checkpoint
}

func (e *testExecution) ProcessInstanceId() string {
	return e.options.ProcessInstanceId
}

func (e *testExecution) ElementId() string {
	return e.options.ElementId
}

func (e *testExecution) ThreadId() string {
	return e.threadId
}

func (e *testExecution) TaskRunId() string {
	return e.taskRunId
}

func (e *testExecution) CorrelationId() string {
	return e.correlationId
}

func (e *testExecution) Properties() model.Properties {
	return e.options.Properties
}

func (e *testExecution) Variables() map[string]any {
	return maps.Clone(e.options.Variables)
}

func (e *testExecution) Checkpoint(checkpoint engine.Checkpoint) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.checkpoints = append(e.checkpoints, checkpoint)

	select {
	case <-e.cancelCh:
		return engine.CancelRequest{Checkpoint: checkpoint, Reason: e.reason}
	default:
		return nil
	}
}

func (e *testExecution) CancelRequested() <-chan struct{} {
	return e.cancelCh
}

func (e *testExecution) Emit(kind eventlog.EventKind, payload eventlog.Payload) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	payload.TaskRunId = e.taskRunId

	e.events = append(e.events, eventlog.Event{
		ProcessInstanceId: e.options.ProcessInstanceId,
		ElementId:         e.options.ElementId,
		ThreadId:          e.threadId,
		Sequence:          int64(len(e.events) + 1),
		Kind:              kind,
		Payload:           payload,
		CreatedAt:         time.Now(),
	})

	select {
	case e.emitted <- struct{}{}:
	default:
	}
	return nil
}

func (e *testExecution) AwaitSignal(ctx context.Context) (engine.Signal, error) {
	select {
	case s := <-e.signal:
		return s, nil
	case <-e.cancelCh:
		e.mutex.Lock()
		defer e.mutex.Unlock()
		return engine.Signal{}, engine.CancelRequest{Reason: e.reason}
	case <-ctx.Done():
		return engine.Signal{}, ctx.Err()
	}
}

func (e *testExecution) Logger() hclog.Logger {
	return hclog.NewNullLogger()
}
