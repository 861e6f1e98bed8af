package internal

import (
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
)

// log buffers an event of a task run. Buffered events are appended, when the step is committed.
func (st *step) log(run *taskRun, kind eventlog.EventKind, payload eventlog.Payload) {
	st.events = append(st.events, newRunEvent(run.TaskRun, kind, payload, st.now))
}

func newRunEvent(taskRun engine.TaskRun, kind eventlog.EventKind, payload eventlog.Payload, now time.Time) eventlog.Event {
	payload.TaskRunId = taskRun.Id

	return eventlog.Event{
		ProcessInstanceId: taskRun.ProcessInstanceId,
		ElementId:         taskRun.ElementId,
		ThreadId:          taskRun.ThreadId,
		Kind:              kind,
		Payload:           payload,
		CreatedAt:         now,
	}
}

// IsProgressKind determines if events of a kind can be emitted by a task executor.
func IsProgressKind(kind eventlog.EventKind) bool {
	switch kind {
	case
		eventlog.EventMessageDelta,
		eventlog.EventMessageEnd,
		eventlog.EventMessageStart,
		eventlog.EventThinking,
		eventlog.EventToolEnd,
		eventlog.EventToolStart:
		return true
	default:
		return false
	}
}
