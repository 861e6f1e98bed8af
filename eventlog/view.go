package eventlog

import (
	"fmt"
)

type ToolStatus int

const (
	ToolRunning ToolStatus = iota + 1
	ToolCompleted
	ToolFailed
	ToolCancelled
)

func MapToolStatus(s string) ToolStatus {
	switch s {
	case "running":
		return ToolRunning
	case "completed":
		return ToolCompleted
	case "failed":
		return ToolFailed
	case "cancelled":
		return ToolCancelled
	default:
		return 0
	}
}

func (v ToolStatus) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", v.String())), nil
}

func (v ToolStatus) String() string {
	switch v {
	case ToolRunning:
		return "running"
	case ToolCompleted:
		return "completed"
	case ToolFailed:
		return "failed"
	case ToolCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (v *ToolStatus) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid tool status data %s", s)
	}
	*v = MapToolStatus(s[1 : len(s)-1])
	return nil
}

type MessageStatus int

const (
	MessageStreaming MessageStatus = iota + 1
	MessageComplete
	MessageCancelled
)

func MapMessageStatus(s string) MessageStatus {
	switch s {
	case "streaming":
		return MessageStreaming
	case "complete":
		return MessageComplete
	case "cancelled":
		return MessageCancelled
	default:
		return 0
	}
}

func (v MessageStatus) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", v.String())), nil
}

func (v MessageStatus) String() string {
	switch v {
	case MessageStreaming:
		return "streaming"
	case MessageComplete:
		return "complete"
	case MessageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (v *MessageStatus) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid message status data %s", s)
	}
	*v = MapMessageStatus(s[1 : len(s)-1])
	return nil
}

// Snapshot is the materialized view of an element's log.
type Snapshot struct {
	ThreadId string    `json:"threadId"`
	Thinking []string  `json:"thinking"`
	Tools    []Tool    `json:"tools"`
	Messages []Message `json:"messages"`
}

type Tool struct {
	CallId string     `json:"callId"`
	Name   string     `json:"name"`
	Status ToolStatus `json:"status"`
	Input  string     `json:"input,omitempty"`
	Output string     `json:"output,omitempty"`
}

type Message struct {
	Id      string        `json:"id"`
	Content string        `json:"content"` // final cumulative content
	Status  MessageStatus `json:"status"`
}

// Fold folds events into a snapshot. Folding the same events always yields the same snapshot.
func Fold(threadId string, events []Event) Snapshot {
	view := NewView(threadId)
	for _, e := range events {
		view.Apply(e)
	}
	return view.Snapshot()
}

func NewView(threadId string) *View {
	return &View{threadId: threadId}
}

// View is a materialized view, maintained incrementally by applying events in sequence order.
// A View is not safe for concurrent use.
type View struct {
	threadId  string
	cancelled bool // progress events of a cancelled task run are ignored, until the next run starts
	thinking  []string
	tools    []Tool
	messages []Message
}

func (v *View) Apply(e Event) {
	p := e.Payload

	if v.cancelled && isProgress(e.Kind) {
		return
	}

	switch e.Kind {
	case EventTaskStarted:
		v.cancelled = false
	case EventThinking:
		v.thinking = append(v.thinking, p.Text)
	case EventToolStart:
		v.tools = append(v.tools, Tool{
			CallId: p.ToolCallId,
			Name:   p.ToolName,
			Status: ToolRunning,
			Input:  p.Input,
		})
	case EventToolEnd:
		tool := v.tool(p.ToolCallId)
		if tool == nil {
			v.tools = append(v.tools, Tool{CallId: p.ToolCallId, Name: p.ToolName})
			tool = &v.tools[len(v.tools)-1]
		}
		tool.Output = p.Output
		if p.ErrorCode != "" {
			tool.Status = ToolFailed
		} else {
			tool.Status = ToolCompleted
		}
	case EventMessageStart:
		v.messages = append(v.messages, Message{Id: p.MessageId, Status: MessageStreaming})
	case EventMessageDelta:
		message := v.message(p.MessageId)
		if message.Status != MessageStreaming {
			break // late delta
		}
		if p.Cumulative != "" {
			message.Content = p.Cumulative
		} else {
			message.Content += p.Delta
		}
	case EventMessageEnd:
		message := v.message(p.MessageId)
		if p.Cumulative != "" {
			message.Content = p.Cumulative
		}
		message.Status = MessageComplete
	case EventCancelled:
		v.cancelled = true
		for i := range v.messages {
			if v.messages[i].Status == MessageStreaming {
				v.messages[i].Status = MessageCancelled
			}
		}
		for i := range v.tools {
			if v.tools[i].Status == ToolRunning {
				v.tools[i].Status = ToolCancelled
			}
		}
	}
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() Snapshot {
	snapshot := Snapshot{
		ThreadId: v.threadId,
		Thinking: make([]string, 0, len(v.thinking)),
		Tools:    make([]Tool, 0, len(v.tools)),
		Messages: make([]Message, 0, len(v.messages)),
	}

	snapshot.Thinking = append(snapshot.Thinking, v.thinking...)
	snapshot.Tools = append(snapshot.Tools, v.tools...)
	snapshot.Messages = append(snapshot.Messages, v.messages...)
	return snapshot
}

// message returns the last message with the given ID. A message is implicitly started, if no message exists.
func (v *View) message(id string) *Message {
	for i := len(v.messages) - 1; i >= 0; i-- {
		if v.messages[i].Id == id {
			return &v.messages[i]
		}
	}
	v.messages = append(v.messages, Message{Id: id, Status: MessageStreaming})
	return &v.messages[len(v.messages)-1]
}

func (v *View) tool(callId string) *Tool {
	for i := len(v.tools) - 1; i >= 0; i-- {
		if v.tools[i].CallId == callId {
			return &v.tools[i]
		}
	}
	return nil
}

func isProgress(kind EventKind) bool {
	switch kind {
	case EventThinking, EventToolStart, EventToolEnd, EventMessageStart, EventMessageDelta, EventMessageEnd:
		return true
	default:
		return false
	}
}
