package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
)

const (
	cancelFailedAlreadyTerminal = "AlreadyTerminal"
	cancelFailedNotCancellable  = "NotCancellable"
)

// CancelTask requests the cancellation of an element's latest task run.
func (i *Instance) CancelTask(ctx context.Context, cmd engine.CancelTaskCmd) (engine.TaskRun, error) {
	var (
		taskRun engine.TaskRun
		result  error
	)

	err := i.call(ctx, func(st *step) error {
		var err error
		taskRun, result, err = st.requestCancel(cmd)
		return err
	})
	if errors.Is(err, errEnded) {
		return i.cancelEnded(ctx, cmd)
	}
	if err != nil {
		return engine.TaskRun{}, err
	}
	return taskRun, result
}

// cancelEnded answers a cancel request for a process instance, whose loop has already stopped. The rejection
// is recorded like any other.
func (i *Instance) cancelEnded(ctx context.Context, cmd engine.CancelTaskCmd) (engine.TaskRun, error) {
	i.mutex.RLock()
	run := i.state.latestRun(cmd.ElementId, cmd.ThreadId)
	i.mutex.RUnlock()

	if run == nil {
		return engine.TaskRun{}, taskRunNotFound(cmd)
	}

	event := newRunEvent(run.TaskRun, eventlog.EventCancelFailed, eventlog.Payload{
		Reason:  cancelFailedAlreadyTerminal,
		Message: cmd.Reason,
	}, i.env.Clock.Now())

	if _, err := i.env.EventLog.Append(ctx, event); err != nil {
		return engine.TaskRun{}, fmt.Errorf("failed to append %s event: %v", eventlog.EventCancelFailed, err)
	}

	i.env.Metrics.CancelRequests.WithLabelValues(cancelFailedAlreadyTerminal).Inc()

	return run.TaskRun, engine.Error{
		Type:   engine.ErrorAlreadyTerminal,
		Title:  "failed to cancel task",
		Detail: fmt.Sprintf("task run %s is %s", run.Id, run.Status),
	}
}

// requestCancel implements the cancellation coordinator's cancel request. A rejection is returned as result,
// not as error, so that the cancel.failed event is recorded.
func (st *step) requestCancel(cmd engine.CancelTaskCmd) (engine.TaskRun, error, error) {
	run := st.state.latestRun(cmd.ElementId, cmd.ThreadId)
	if run == nil {
		return engine.TaskRun{}, nil, taskRunNotFound(cmd)
	}

	i := st.instance

	switch {
	case run.Status.IsTerminal():
		st.log(run, eventlog.EventCancelFailed, eventlog.Payload{Reason: cancelFailedAlreadyTerminal, Message: cmd.Reason})
		st.effect(func() {
			i.env.Metrics.CancelRequests.WithLabelValues(cancelFailedAlreadyTerminal).Inc()
		})
		return run.TaskRun, engine.Error{
			Type:   engine.ErrorAlreadyTerminal,
			Title:  "failed to cancel task",
			Detail: fmt.Sprintf("task run %s is %s", run.Id, run.Status),
		}, nil
	case run.Status == engine.TaskRunCancelling:
		return run.TaskRun, nil, nil
	case !run.Cancellable:
		st.log(run, eventlog.EventCancelFailed, eventlog.Payload{Reason: cancelFailedNotCancellable, Message: cmd.Reason})
		st.effect(func() {
			i.env.Metrics.CancelRequests.WithLabelValues(cancelFailedNotCancellable).Inc()
		})
		return run.TaskRun, engine.Error{
			Type:   engine.ErrorNotCancellable,
			Title:  "failed to cancel task",
			Detail: fmt.Sprintf("element %s does not allow cancellation", run.ElementId),
		}, nil
	}

	st.effect(func() {
		i.env.Metrics.CancelRequests.WithLabelValues("Accepted").Inc()
	})

	if err := st.acceptCancel(run, cmd.Reason); err != nil {
		return engine.TaskRun{}, nil, err
	}
	return run.TaskRun, nil, nil
}

// acceptCancel moves a pending or running task run to CANCELLING. Pending runs and user tasks are not backed
// by an executor, so they are cancelled immediately.
func (st *step) acceptCancel(run *taskRun, reason string) error {
	st.log(run, eventlog.EventCancelRequested, eventlog.Payload{Reason: reason})
	st.log(run, eventlog.EventCancelling, eventlog.Payload{Reason: reason})

	run.CancellationRequested = true

	if run.Status == engine.TaskRunPending || run.userTask {
		return st.cancelRunByUser(run, "", reason)
	}

	run.Status = engine.TaskRunCancelling
	run.Reason = reason
	st.signalCancel(run, reason)
	return nil
}

// cancelInternally cancels a task run on behalf of the engine, bypassing AllowCancellation. A run, backed by an
// executor, is forcibly terminated, if it does not end within the cancel grace period.
func (st *step) cancelInternally(run *taskRun, reason string, cause cancelCause) {
	switch run.Status {
	case engine.TaskRunPending:
		st.cancelRun(run, "", reason)
	case engine.TaskRunRunning:
		st.log(run, eventlog.EventCancelRequested, eventlog.Payload{Reason: reason})
		st.log(run, eventlog.EventCancelling, eventlog.Payload{Reason: reason})

		run.CancellationRequested = true

		if run.userTask {
			st.cancelRun(run, "", reason)
			return
		}

		run.Status = engine.TaskRunCancelling
		run.Reason = reason
		run.cause = cause
		st.signalCancel(run, reason)
		st.armGrace(run)
	case engine.TaskRunCancelling:
		if run.cause == causeNone {
			run.Reason = reason
			run.cause = cause
			st.armGrace(run)
		}
	}
}

func (st *step) signalCancel(run *taskRun, reason string) {
	i := st.instance
	runId := run.Id
	st.effect(func() {
		if h, ok := i.handles[runId]; ok {
			h.signalCancel(reason)
		}
	})
}

// armGrace disarms all timers of a task run and arms the cancel grace period.
func (st *step) armGrace(run *taskRun) {
	i := st.instance
	runId := run.Id
	due := st.now.Add(i.env.CancelGracePeriod)

	st.effect(func() {
		i.env.Scheduler.Cancel(runId)
		i.env.Scheduler.Schedule(runId, "grace", due, func() {
			i.fire(func(st *step) error {
				return st.onGraceExpired(runId)
			})
		})
	})
}

// onGraceExpired forcibly terminates a task run, which did not honor an engine-initiated cancellation.
// Any outcome, reported later, is discarded.
func (st *step) onGraceExpired(runId string) error {
	run := st.state.run(runId)
	if run == nil || run.Status.IsTerminal() {
		return nil
	}

	st.instance.logger.Warn("task run did not end within the cancel grace period", "run", runId, "element", run.ElementId)

	if run.cause == causeTimeout {
		return st.timeoutRun(run, "")
	}
	st.cancelRun(run, "", run.Reason)
	return nil
}

// Cancel cancels a running process instance. Task runs, backed by an executor, receive a cancel request,
// which is subject to AllowCancellation. User tasks and pending task runs are cancelled immediately.
func (i *Instance) Cancel(ctx context.Context, reason string) (engine.ProcessInstance, error) {
	err := i.call(ctx, func(st *step) error {
		return st.cancelInstance(reason)
	})
	if errors.Is(err, errEnded) {
		err = instanceAlreadyTerminal(i.ProcessInstance())
	}
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return i.ProcessInstance(), nil
}

func (st *step) cancelInstance(reason string) error {
	s := st.state
	if s.status.IsTerminal() {
		return instanceAlreadyTerminal(s.processInstance(st.instance))
	}
	if s.cancelled {
		return nil
	}

	if reason == "" {
		reason = "process instance cancelled"
	}

	s.cancelled = true
	s.terminating = true

	for _, run := range s.runs {
		if run.Status.IsTerminal() {
			continue
		}

		run.token = 0

		switch {
		case run.Status == engine.TaskRunCancelling:
			continue
		case run.Status == engine.TaskRunPending || run.userTask:
			st.log(run, eventlog.EventCancelRequested, eventlog.Payload{Reason: reason})
			st.log(run, eventlog.EventCancelling, eventlog.Payload{Reason: reason})
			run.CancellationRequested = true
			st.cancelRun(run, "", reason)
		case !run.Cancellable:
			st.log(run, eventlog.EventCancelFailed, eventlog.Payload{Reason: cancelFailedNotCancellable, Message: reason})
		default:
			if err := st.acceptCancel(run, reason); err != nil {
				return err
			}
		}
	}

	clear(s.tokens)
	return nil
}

func instanceAlreadyTerminal(pi engine.ProcessInstance) error {
	return engine.Error{
		Type:   engine.ErrorAlreadyTerminal,
		Title:  "failed to cancel process instance",
		Detail: fmt.Sprintf("process instance %s is %s", pi.Id, pi.Status),
	}
}

func taskRunNotFound(cmd engine.CancelTaskCmd) error {
	return engine.Error{
		Type:   engine.ErrorNotFound,
		Title:  "failed to cancel task",
		Detail: fmt.Sprintf("process instance %s has no task run of element %s", cmd.ProcessInstanceId, cmd.ElementId),
	}
}
