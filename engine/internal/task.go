package internal

import (
	"fmt"
	"maps"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/model"
	"github.com/google/uuid"
)

// ErrorCodeExecutorNotFound is the error code of a task run, whose executor is not registered.
const ErrorCodeExecutorNotFound = "ExecutorNotFound"

// createRun creates a task run for a token, that entered a task. The run stays pending, while another run of
// the same element is active.
func (st *step) createRun(t *token, element *model.Element) error {
	i := st.instance

	run := &taskRun{
		TaskRun: engine.TaskRun{
			Id:                uuid.NewString(),
			ProcessInstanceId: i.id,
			ElementId:         element.Id,
			ThreadId:          ThreadId(i.id, element.Id),
			CorrelationId:     uuid.NewString(),

			Cancellable: element.Properties.AllowCancellation,
			Status:      engine.TaskRunPending,

			CreatedAt: st.now,
		},

		token:    t.id,
		userTask: element.Type == model.ElementUserTask,
	}

	t.runId = run.Id

	st.state.runs = append(st.state.runs, run)

	if st.state.occupied(element.Id) {
		return nil
	}
	return st.activate(run)
}

// activate starts a pending task run: its SLA deadlines and boundary timers are armed, its correlation ID is
// registered and the executor is launched.
func (st *step) activate(run *taskRun) error {
	i := st.instance
	element := i.process.Model.ElementById(run.ElementId)

	startedAt := st.now

	run.Status = engine.TaskRunRunning
	run.StartedAt = &startedAt
	run.startSeq = st.state.seq

	st.log(run, eventlog.EventTaskStarted, eventlog.Payload{CorrelationId: run.CorrelationId})
	if run.Cancellable {
		st.log(run, eventlog.EventCancellable, eventlog.Payload{})
	}

	st.register(run)

	st.armSLA(run, element)
	st.armTimers(run, element)

	if run.userTask {
		return nil
	}

	executor, ok := i.env.executor(element)
	if !ok {
		name := element.Properties.Executor
		if name == "" {
			name = element.Id
		}
		return st.failRun(run, ErrorCodeExecutorNotFound, fmt.Sprintf("no executor %s registered", name), engine.ErrorTaskFailure)
	}

	taskRun := run.TaskRun
	variables := maps.Clone(st.state.variables)
	st.effect(func() {
		i.launch(executor, element, taskRun, variables)
	})
	return nil
}

func (st *step) activatePendingRuns() (bool, error) {
	var activated bool
	for j := 0; j < len(st.state.runs); j++ {
		run := st.state.runs[j]
		if run.Status != engine.TaskRunPending || st.state.occupied(run.ElementId) {
			continue
		}
		if err := st.activate(run); err != nil {
			return false, err
		}
		activated = true
	}
	return activated, nil
}

// onOutcome handles the outcome of an executor. Outcomes of task runs, which have already ended, are discarded.
func (st *step) onOutcome(runId string, outcome engine.TaskOutcome) error {
	run := st.state.run(runId)
	if run == nil || run.Status.IsTerminal() {
		st.instance.logger.Debug("discarding outcome", "run", runId, "outcome", outcome)
		return nil
	}

	switch run.cause {
	case causeTimeout:
		return st.timeoutRun(run, outcome.PartialResult)
	case causeInterrupt:
		st.cancelRun(run, outcome.PartialResult, run.Reason)
		return nil
	}

	switch outcome.Kind {
	case engine.OutcomeCompleted:
		return st.completeRun(run, outcome.Variables)
	case engine.OutcomeFailed:
		return st.failRun(run, outcome.ErrorCode, outcome.Message, engine.ErrorTaskFailure)
	case engine.OutcomeCancelled:
		reason := outcome.Reason
		if reason == "" {
			reason = run.Reason
		}
		return st.cancelRunByUser(run, outcome.PartialResult, reason)
	default:
		return st.failRun(run, "InvalidOutcome", fmt.Sprintf("executor returned an invalid outcome kind %d", outcome.Kind), engine.ErrorTaskFailure)
	}
}

// endRun moves a task run to a terminal status and disarms its timers.
func (st *step) endRun(run *taskRun, status engine.TaskRunStatus) {
	i := st.instance

	endedAt := st.now

	run.Status = status
	run.EndedAt = &endedAt

	runId := run.Id
	elementType := i.process.Model.ElementById(run.ElementId).Type.String()
	st.effect(func() {
		i.env.Scheduler.Cancel(runId)
		i.release(runId)
		i.env.Metrics.TaskRunsEnded.WithLabelValues(elementType, status.String()).Inc()
	})
}

func (st *step) completeRun(run *taskRun, variables map[string]any) error {
	st.endRun(run, engine.TaskRunCompleted)
	run.Reason = "completed"

	st.log(run, eventlog.EventTaskCompleted, eventlog.Payload{})
	st.writeVariables(run, variables)

	t := st.state.tokenOf(run)
	if t == nil {
		return nil
	}
	return st.leave(t, st.instance.process.Model.ElementById(run.ElementId))
}

func (st *step) failRun(run *taskRun, errorCode string, message string, errorType engine.ErrorType) error {
	st.endRun(run, engine.TaskRunFailed)
	run.ErrorCode = errorCode
	run.Message = message
	run.Reason = fmt.Sprintf("failed with %s", errorCode)

	st.log(run, eventlog.EventTaskFailed, eventlog.Payload{
		ErrorCode:     errorCode,
		Message:       message,
		PartialResult: run.PartialResult,
	})

	t := st.state.tokenOf(run)
	if t == nil {
		return nil
	}

	return st.routeFailure(t, st.instance.process.Model.ElementById(run.ElementId), engine.Failure{
		ElementId: run.ElementId,
		Type:      errorType,
		ErrorCode: errorCode,
		Message:   message,
	}, false)
}

// timeoutRun fails a task run, which exceeded its SLA timeout. A flushed partial result is kept.
func (st *step) timeoutRun(run *taskRun, partialResult string) error {
	run.PartialResult = partialResult
	return st.failRun(run, engine.ErrorCodeSLATimeout, "SLA timeout exceeded", engine.ErrorSLATimeout)
}

// cancelRun ends a task run as cancelled, without routing its token.
func (st *step) cancelRun(run *taskRun, partialResult string, reason string) {
	st.endRun(run, engine.TaskRunCancelled)
	run.PartialResult = partialResult
	run.Reason = reason

	st.log(run, eventlog.EventCancelled, eventlog.Payload{PartialResult: partialResult, Reason: reason})
}

// cancelRunByUser ends a task run as cancelled, which honored a cancel request. Its token follows a matching
// error boundary event or ends.
func (st *step) cancelRunByUser(run *taskRun, partialResult string, reason string) error {
	st.cancelRun(run, partialResult, reason)
	run.ErrorCode = engine.ErrorCodeCancelledByUser

	t := st.state.tokenOf(run)
	if t == nil {
		return nil
	}

	return st.routeFailure(t, st.instance.process.Model.ElementById(run.ElementId), engine.Failure{
		ElementId: run.ElementId,
		Type:      engine.ErrorCancelledByUser,
		ErrorCode: engine.ErrorCodeCancelledByUser,
		Message:   reason,
	}, true)
}
