package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/model"
)

// armSLA arms the SLA deadlines of a task run, relative to its start.
func (st *step) armSLA(run *taskRun, element *model.Element) {
	slas := element.Properties.SLA
	if len(slas) == 0 {
		return
	}

	i := st.instance
	runId := run.Id
	start := st.now

	st.effect(func() {
		err := i.env.Scheduler.ArmSLA(runId, start, slas, func(kind model.TimerKind) {
			i.fire(func(st *step) error {
				return st.onSLA(runId, kind)
			})
		})
		if err != nil {
			i.logger.Error("failed to arm SLA deadlines", "run", runId, "err", err)
		}
	})
}

// onSLA handles a reached SLA deadline of an active task run.
func (st *step) onSLA(runId string, kind model.TimerKind) error {
	run := st.state.run(runId)
	if run == nil || (run.Status != engine.TaskRunRunning && run.Status != engine.TaskRunCancelling) {
		return nil
	}

	i := st.instance
	st.effect(func() {
		i.env.Metrics.SLADeadlines.WithLabelValues(kind.String()).Inc()
	})

	switch kind {
	case model.TimerWarning:
		st.log(run, eventlog.EventSLAWarning, eventlog.Payload{})
		return nil
	case model.TimerEscalation:
		st.log(run, eventlog.EventSLAEscalation, eventlog.Payload{})
		if run.Status != engine.TaskRunRunning {
			return nil
		}
		return st.escalate(run)
	case model.TimerTimeout:
		st.log(run, eventlog.EventSLATimeout, eventlog.Payload{})
		if run.userTask {
			return st.timeoutRun(run, "")
		}
		st.cancelInternally(run, "SLA timeout exceeded", causeTimeout)
		return nil
	default:
		return fmt.Errorf("unsupported SLA kind %d", kind)
	}
}

// escalate triggers the escalation boundary events of a task run in declaration order. An interrupting
// boundary event cancels the run and stops the triggering.
func (st *step) escalate(run *taskRun) error {
	t := st.state.tokenOf(run)
	if t == nil {
		return nil
	}

	element := st.instance.process.Model.ElementById(run.ElementId)
	for _, boundary := range element.BoundariesByType(model.ElementEscalationBoundaryEvent) {
		if boundary.Properties.IsInterrupting {
			run.token = 0
			st.cancelInternally(run, fmt.Sprintf("interrupted by escalation boundary event %s", boundary.Id), causeInterrupt)
			return st.triggerBoundary(t, boundary)
		}

		if err := st.triggerBoundary(st.newToken(t.recovery), boundary); err != nil {
			return err
		}
	}
	return nil
}

// triggerBoundary moves a token to a boundary event and takes its outgoing sequence flows.
func (st *step) triggerBoundary(t *token, boundary *model.Element) error {
	t.elementId = boundary.Id
	t.runId = ""
	return st.leave(t, boundary)
}

// fire processes a message on behalf of a timer and waits until it has been processed, so that timers, fired
// by SetTime, are processed in due order.
func (i *Instance) fire(fn func(*step) error) {
	if err := i.call(context.Background(), fn); err != nil && !errors.Is(err, errEnded) {
		i.logger.Error("failed to process timer", "err", err)
	}
}
