package eventlog

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cancelledStream() []Event {
	return []Event{
		{Kind: EventTaskStarted, Payload: Payload{CorrelationId: "c1"}},
		{Kind: EventThinking, Payload: Payload{Text: "Looking at the data"}},
		{Kind: EventToolStart, Payload: Payload{ToolCallId: "call-1", ToolName: "search", Input: "q"}},
		{Kind: EventToolEnd, Payload: Payload{ToolCallId: "call-1", ToolName: "search", Output: "3 results"}},
		{Kind: EventMessageStart, Payload: Payload{MessageId: "m1"}},
		{Kind: EventMessageDelta, Payload: Payload{MessageId: "m1", Delta: "Based", Cumulative: "Based"}},
		{Kind: EventMessageDelta, Payload: Payload{MessageId: "m1", Delta: " on the", Cumulative: "Based on the"}},
		{Kind: EventToolStart, Payload: Payload{ToolCallId: "call-2", ToolName: "fetch", Input: "url"}},
		{Kind: EventCancelRequested, Payload: Payload{Reason: "user"}},
		{Kind: EventCancelling},
		{Kind: EventCancelled, Payload: Payload{PartialResult: "Based on the", Reason: "user"}},
	}
}

func TestFold(t *testing.T) {
	t.Run("cancelled stream", func(t *testing.T) {
		// when
		snapshot := Fold("t1", cancelledStream())

		// then
		b, err := json.MarshalIndent(snapshot, "", "  ")
		require.NoError(t, err)

		g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
		g.Assert(t, "cancelled-stream", b)
	})

	t.Run("empty", func(t *testing.T) {
		snapshot := Fold("t1", nil)

		assert.Equal(t, Snapshot{ThreadId: "t1", Thinking: []string{}, Tools: []Tool{}, Messages: []Message{}}, snapshot)
	})

	t.Run("deterministic", func(t *testing.T) {
		events := cancelledStream()
		assert.Equal(t, Fold("t1", events), Fold("t1", events))
	})

	t.Run("delta without cumulative", func(t *testing.T) {
		snapshot := Fold("t1", []Event{
			{Kind: EventMessageDelta, Payload: Payload{MessageId: "m1", Delta: "Hello"}},
			{Kind: EventMessageDelta, Payload: Payload{MessageId: "m1", Delta: " world"}},
			{Kind: EventMessageEnd, Payload: Payload{MessageId: "m1"}},
		})

		assert.Equal(t, []Message{{Id: "m1", Content: "Hello world", Status: MessageComplete}}, snapshot.Messages)
	})

	t.Run("message end overrides content", func(t *testing.T) {
		snapshot := Fold("t1", []Event{
			{Kind: EventMessageStart, Payload: Payload{MessageId: "m1"}},
			{Kind: EventMessageDelta, Payload: Payload{MessageId: "m1", Delta: "Hel", Cumulative: "Hel"}},
			{Kind: EventMessageEnd, Payload: Payload{MessageId: "m1", Cumulative: "Hello"}},
			{Kind: EventCancelled},
		})

		assert.Equal(t, []Message{{Id: "m1", Content: "Hello", Status: MessageComplete}}, snapshot.Messages)
	})

	t.Run("progress after cancelled is ignored", func(t *testing.T) {
		events := append(cancelledStream(),
			Event{Kind: EventMessageStart, Payload: Payload{MessageId: "m2"}},
			Event{Kind: EventMessageDelta, Payload: Payload{MessageId: "m2", Delta: "late", Cumulative: "late"}},
			Event{Kind: EventToolStart, Payload: Payload{ToolCallId: "call-3", ToolName: "search"}},
			Event{Kind: EventThinking, Payload: Payload{Text: "late"}},
		)

		assert.Equal(t, Fold("t1", cancelledStream()), Fold("t1", events))
	})

	t.Run("next task run after cancelled", func(t *testing.T) {
		events := append(cancelledStream(),
			Event{Kind: EventTaskStarted, Payload: Payload{CorrelationId: "c2"}},
			Event{Kind: EventMessageStart, Payload: Payload{MessageId: "m2"}},
			Event{Kind: EventMessageEnd, Payload: Payload{MessageId: "m2", Cumulative: "Done"}},
		)

		snapshot := Fold("t1", events)
		assert.Len(t, snapshot.Messages, 2)
		assert.Equal(t, Message{Id: "m2", Content: "Done", Status: MessageComplete}, snapshot.Messages[1])
	})

	t.Run("failed tool", func(t *testing.T) {
		snapshot := Fold("t1", []Event{
			{Kind: EventToolStart, Payload: Payload{ToolCallId: "call-1", ToolName: "search"}},
			{Kind: EventToolEnd, Payload: Payload{ToolCallId: "call-1", ErrorCode: "Timeout", Output: "no response"}},
		})

		assert.Equal(t, []Tool{{CallId: "call-1", Name: "search", Status: ToolFailed, Output: "no response"}}, snapshot.Tools)
	})
}

func TestViewIncremental(t *testing.T) {
	assert := assert.New(t)

	events := cancelledStream()

	view := NewView("t1")
	for i, e := range events {
		view.Apply(e)

		// every intermediate view equals the fold of the prefix
		assert.Equal(Fold("t1", events[:i+1]), view.Snapshot())
	}

	// snapshots are copies
	snapshot := view.Snapshot()
	snapshot.Messages[0].Content = "changed"
	assert.Equal("Based on the", view.Snapshot().Messages[0].Content)
}

func TestEventKind(t *testing.T) {
	assert := assert.New(t)

	for i := EventCancelFailed; i <= EventToolStart; i++ {
		assert.Equal(i, MapEventKind(i.String()))

		b, err := json.Marshal(i)
		assert.NoError(err)

		var kind EventKind
		assert.NoError(json.Unmarshal(b, &kind))
		assert.Equal(i, kind)
	}

	var kind EventKind
	assert.Error(json.Unmarshal([]byte(`"unknown"`), &kind))
}
