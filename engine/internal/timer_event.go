package internal

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
)

// armTimers arms the timer boundary events of a task run, relative to its start.
func (st *step) armTimers(run *taskRun, element *model.Element) {
	for _, boundary := range element.BoundariesByType(model.ElementTimerBoundaryEvent) {
		due, err := evaluateTimer(*boundary.Properties.Timer, st.now)
		if err != nil {
			st.instance.logger.Error("failed to evaluate timer", "element", boundary.Id, "err", err)
			continue
		}
		st.scheduleTimer(run.Id, boundary, due)
	}
}

func (st *step) scheduleTimer(runId string, boundary *model.Element, due time.Time) {
	i := st.instance
	boundaryId := boundary.Id

	st.effect(func() {
		i.env.Scheduler.Schedule(runId, boundaryId, due, func() {
			i.fire(func(st *step) error {
				return st.onTimer(runId, boundaryId)
			})
		})
	})
}

// onTimer handles a fired timer boundary event. An interrupting boundary event cancels the task run, which
// disarms all other timers. A non-interrupting boundary event spawns a token and re-arms a time cycle.
func (st *step) onTimer(runId string, boundaryId string) error {
	run := st.state.run(runId)
	if run == nil || run.Status != engine.TaskRunRunning {
		return nil
	}

	t := st.state.tokenOf(run)
	if t == nil {
		return nil
	}

	boundary := st.instance.process.Model.ElementById(boundaryId)
	if boundary.Properties.IsInterrupting {
		run.token = 0
		st.cancelInternally(run, fmt.Sprintf("interrupted by timer boundary event %s", boundaryId), causeInterrupt)
		return st.triggerBoundary(t, boundary)
	}

	if timer := *boundary.Properties.Timer; timer.TimeCycle != "" {
		due, err := evaluateTimer(timer, st.now)
		if err != nil {
			return fmt.Errorf("failed to evaluate timer of %s: %v", boundaryId, err)
		}
		st.scheduleTimer(runId, boundary, due)
	}

	return st.triggerBoundary(st.newToken(t.recovery), boundary)
}
