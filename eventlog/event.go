package eventlog

import (
	"fmt"
	"time"
)

// EventKind describes what happened during a task run.
type EventKind int

const (
	EventCancelFailed EventKind = iota + 1
	EventCancelRequested
	EventCancellable
	EventCancelled
	EventCancelling
	EventMessageDelta
	EventMessageEnd
	EventMessageStart
	EventSLAEscalation
	EventSLATimeout
	EventSLAWarning
	EventTaskCompleted
	EventTaskFailed
	EventTaskStarted
	EventThinking
	EventToolEnd
	EventToolStart
)

func MapEventKind(s string) EventKind {
	switch s {
	case "cancel.failed":
		return EventCancelFailed
	case "cancel.requested":
		return EventCancelRequested
	case "cancellable":
		return EventCancellable
	case "cancelled":
		return EventCancelled
	case "cancelling":
		return EventCancelling
	case "message.delta":
		return EventMessageDelta
	case "message.end":
		return EventMessageEnd
	case "message.start":
		return EventMessageStart
	case "sla.escalation":
		return EventSLAEscalation
	case "sla.timeout":
		return EventSLATimeout
	case "sla.warning":
		return EventSLAWarning
	case "task.completed":
		return EventTaskCompleted
	case "task.failed":
		return EventTaskFailed
	case "task.started":
		return EventTaskStarted
	case "thinking":
		return EventThinking
	case "tool.end":
		return EventToolEnd
	case "tool.start":
		return EventToolStart
	default:
		return 0
	}
}

func (v EventKind) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v EventKind) String() string {
	switch v {
	case EventCancelFailed:
		return "cancel.failed"
	case EventCancelRequested:
		return "cancel.requested"
	case EventCancellable:
		return "cancellable"
	case EventCancelled:
		return "cancelled"
	case EventCancelling:
		return "cancelling"
	case EventMessageDelta:
		return "message.delta"
	case EventMessageEnd:
		return "message.end"
	case EventMessageStart:
		return "message.start"
	case EventSLAEscalation:
		return "sla.escalation"
	case EventSLATimeout:
		return "sla.timeout"
	case EventSLAWarning:
		return "sla.warning"
	case EventTaskCompleted:
		return "task.completed"
	case EventTaskFailed:
		return "task.failed"
	case EventTaskStarted:
		return "task.started"
	case EventThinking:
		return "thinking"
	case EventToolEnd:
		return "tool.end"
	case EventToolStart:
		return "tool.start"
	default:
		return ""
	}
}

func (v *EventKind) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) < 2 {
		return fmt.Errorf("invalid event kind data %s", s)
	}
	*v = MapEventKind(s[1 : len(s)-1])
	if *v == 0 {
		return fmt.Errorf("invalid event kind data %s", s)
	}
	return nil
}

// Event is an immutable fact about a task run. Events are only appended and never modified.
type Event struct {
	Id                int64     `json:"id,string"` // Snowflake ID, assigned by the store.
	ProcessInstanceId string    `json:"processInstanceId"`
	ElementId         string    `json:"elementId"`
	ThreadId          string    `json:"threadId"`
	Sequence          int64     `json:"sequence"` // Monotonic per key, assigned by the store.
	Kind              EventKind `json:"kind"`
	Payload           Payload   `json:"payload"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Key returns the key of the log, the event belongs to.
func (e Event) Key() Key {
	return Key{
		ProcessInstanceId: e.ProcessInstanceId,
		ElementId:         e.ElementId,
		ThreadId:          e.ThreadId,
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%s#%d %s", e.ProcessInstanceId, e.ElementId, e.Sequence, e.Kind)
}

// Payload carries the kind specific data of an event. Unused fields are empty.
type Payload struct {
	TaskRunId     string `json:"taskRunId,omitempty"`
	CorrelationId string `json:"correlationId,omitempty"`

	Text string `json:"text,omitempty"` // thinking

	MessageId  string `json:"messageId,omitempty"`
	Delta      string `json:"delta,omitempty"`      // incremental content of message.delta
	Cumulative string `json:"cumulative,omitempty"` // content of the message so far

	ToolCallId string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"`

	PartialResult string `json:"partialResult,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Key identifies the log of an element within a process instance.
type Key struct {
	ProcessInstanceId string `json:"processInstanceId"`
	ElementId         string `json:"elementId"`
	ThreadId          string `json:"threadId"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ProcessInstanceId, k.ElementId, k.ThreadId)
}

// Scope selects the logs of a process instance or of a single element, if ElementId is set.
type Scope struct {
	ProcessInstanceId string `json:"processInstanceId" validate:"required"`
	ElementId         string `json:"elementId,omitempty"`
}

func (s Scope) contains(key Key) bool {
	return key.ProcessInstanceId == s.ProcessInstanceId && (s.ElementId == "" || key.ElementId == s.ElementId)
}

// Criteria is used to query events of a process instance. Empty fields match everything.
type Criteria struct {
	ProcessInstanceId string    `json:"processInstanceId" validate:"required"`
	ElementId         string    `json:"elementId,omitempty"`
	ThreadId          string    `json:"threadId,omitempty"`
	Kind              EventKind `json:"kind,omitempty"`
}

func (c Criteria) matches(e Event) bool {
	if e.ProcessInstanceId != c.ProcessInstanceId {
		return false
	}
	if c.ElementId != "" && e.ElementId != c.ElementId {
		return false
	}
	if c.ThreadId != "" && e.ThreadId != c.ThreadId {
		return false
	}
	return c.Kind == 0 || e.Kind == c.Kind
}
