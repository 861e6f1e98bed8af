package internal

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/model"
	"github.com/hashicorp/go-hclog"
)

// runHandle connects the loop goroutine with the goroutine of an executor.
type runHandle struct {
	cancelCh   chan struct{} // closed, when a cancellation is requested
	cancelOnce sync.Once
	reason     atomic.Value // string

	signal chan engine.Signal

	ctxCancel context.CancelFunc
	ended     atomic.Bool
}

func newRunHandle(ctxCancel context.CancelFunc) *runHandle {
	return &runHandle{
		cancelCh:  make(chan struct{}),
		signal:    make(chan engine.Signal, 1),
		ctxCancel: ctxCancel,
	}
}

func (h *runHandle) signalCancel(reason string) {
	h.cancelOnce.Do(func() {
		h.reason.Store(reason)
		close(h.cancelCh)
	})
}

func (h *runHandle) cancelReason() string {
	reason, _ := h.reason.Load().(string)
	return reason
}

// release marks the task run as ended and cancels the executor's context.
func (h *runHandle) release() {
	h.ended.Store(true)
	h.ctxCancel()
}

// launch executes a task run in a separate goroutine. The outcome is posted back to the loop.
func (i *Instance) launch(executor engine.TaskExecutor, element *model.Element, taskRun engine.TaskRun, variables map[string]any) {
	properties := element.Properties
	if properties.RetryLimit == 0 {
		properties.RetryLimit = i.env.DefaultRetryLimit
	}

	ctx, cancel := context.WithCancel(i.ctx)

	h := newRunHandle(cancel)
	i.handles[taskRun.Id] = h

	execution := &execution{
		instance:   i,
		handle:     h,
		taskRun:    taskRun,
		properties: properties,
		variables:  variables,
		logger:     i.logger.With("element", taskRun.ElementId, "run", taskRun.Id),
	}

	runId := taskRun.Id
	go func() {
		outcome := execute(ctx, executor, execution)
		i.post(func(st *step) error {
			return st.onOutcome(runId, outcome)
		})
	}()
}

func execute(ctx context.Context, executor engine.TaskExecutor, execution *execution) (outcome engine.TaskOutcome) {
	defer func() {
		if r := recover(); r != nil {
			execution.logger.Error("executor panicked", "panic", r)
			outcome = engine.Failed("ExecutorPanic", fmt.Sprintf("executor panicked: %v", r))
		}
	}()

	return executor.Execute(ctx, execution)
}

// release releases the handle of an ended task run.
func (i *Instance) release(runId string) {
	if h, ok := i.handles[runId]; ok {
		h.release()
		delete(i.handles, runId)
	}
}

// execution implements [engine.Execution].
type execution struct {
	instance   *Instance
	handle     *runHandle
	taskRun    engine.TaskRun
	properties model.Properties
	variables  map[string]any
	logger     hclog.Logger
}

func (e *execution) ProcessInstanceId() string {
	return e.taskRun.ProcessInstanceId
}

func (e *execution) ElementId() string {
	return e.taskRun.ElementId
}

func (e *execution) ThreadId() string {
	return e.taskRun.ThreadId
}

func (e *execution) TaskRunId() string {
	return e.taskRun.Id
}

func (e *execution) CorrelationId() string {
	return e.taskRun.CorrelationId
}

func (e *execution) Properties() model.Properties {
	return e.properties
}

func (e *execution) Variables() map[string]any {
	return maps.Clone(e.variables)
}

func (e *execution) Checkpoint(checkpoint engine.Checkpoint) error {
	select {
	case <-e.handle.cancelCh:
		return engine.CancelRequest{Checkpoint: checkpoint, Reason: e.handle.cancelReason()}
	default:
		return nil
	}
}

func (e *execution) CancelRequested() <-chan struct{} {
	return e.handle.cancelCh
}

func (e *execution) Emit(kind eventlog.EventKind, payload eventlog.Payload) error {
	if !IsProgressKind(kind) {
		return engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to emit event",
			Detail: fmt.Sprintf("event kind %s cannot be emitted by an executor", kind),
		}
	}
	if e.handle.ended.Load() {
		return engine.Error{
			Type:   engine.ErrorAlreadyTerminal,
			Title:  "failed to emit event",
			Detail: fmt.Sprintf("task run %s has ended", e.taskRun.Id),
		}
	}

	payload.TaskRunId = e.taskRun.Id

	_, err := e.instance.env.EventLog.Append(context.Background(), eventlog.Event{
		ProcessInstanceId: e.taskRun.ProcessInstanceId,
		ElementId:         e.taskRun.ElementId,
		ThreadId:          e.taskRun.ThreadId,
		Kind:              kind,
		Payload:           payload,
		CreatedAt:         e.instance.env.Clock.Now(),
	})
	return err
}

func (e *execution) AwaitSignal(ctx context.Context) (engine.Signal, error) {
	select {
	case s := <-e.handle.signal:
		return s, nil
	case <-e.handle.cancelCh:
		return engine.Signal{}, engine.CancelRequest{Reason: e.handle.cancelReason()}
	case <-ctx.Done():
		return engine.Signal{}, ctx.Err()
	}
}

func (e *execution) Logger() hclog.Logger {
	return e.logger
}

// signal delivers an external completion to a task run, which awaits it.
func (i *Instance) signal(runId string, s engine.Signal) {
	h, ok := i.handles[runId]
	if !ok {
		return
	}

	select {
	case h.signal <- s:
	default:
		i.logger.Warn("dropping signal, since another one is pending", "run", runId)
	}
}
