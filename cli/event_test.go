package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// awaitEvent waits until an element's event log contains an event of the given kind.
func awaitEvent(t *testing.T, e engine.Engine, processInstanceId string, elementId string, kind eventlog.EventKind) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := e.Subscribe(ctx, eventlog.Criteria{
		ProcessInstanceId: processInstanceId,
		ElementId:         elementId,
		Kind:              kind,
	})
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	if _, ok := <-events; !ok {
		t.Fatalf("expected element %s to have a %s event", elementId, kind)
	}
}

func TestEvent(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	e := mustCreateEngine(t)

	piAssert := mustStart(t, e, "task/agent.yaml", "agentTest")
	piAssert.IsWaitingAt("analyze")

	processInstanceId := piAssert.ProcessInstance().Id

	awaitEvent(t, e, processInstanceId, "analyze", eventlog.EventMessageEnd)

	t.Run("query", func(t *testing.T) {
		out := mustExecute(t, e, []string{
			"event",
			"query",
			"--process-instance-id",
			processInstanceId,
			"--element-id",
			"analyze",
		})

		assert.Contains(out, eventlog.EventTaskStarted.String())
		assert.Contains(out, eventlog.EventMessageStart.String())
		assert.Contains(out, eventlog.EventMessageEnd.String())
	})

	t.Run("query by kind", func(t *testing.T) {
		out := mustExecute(t, e, []string{
			"event",
			"query",
			"--process-instance-id",
			processInstanceId,
			"--kind",
			"message.delta",
		})

		assert.Contains(out, `"delta":"Hello"`)
		assert.NotContains(out, eventlog.EventTaskStarted.String())
	})

	t.Run("snapshot", func(t *testing.T) {
		out := mustExecute(t, e, []string{
			"event",
			"snapshot",
			"--process-instance-id",
			processInstanceId,
			"--element-id",
			"analyze",
		})

		var snapshot eventlog.Snapshot
		require.NoError(json.Unmarshal([]byte(out), &snapshot))

		require.Len(snapshot.Messages, 1)
		assert.Equal("Hello", snapshot.Messages[0].Content)
	})

	t.Run("clear", func(t *testing.T) {
		mustExecute(t, e, []string{
			"event",
			"clear",
			"--process-instance-id",
			processInstanceId,
			"--element-id",
			"analyze",
		})

		events, err := e.QueryEvents(context.Background(), eventlog.Criteria{ProcessInstanceId: processInstanceId, ElementId: "analyze"})
		require.NoError(err)
		assert.Empty(events)
	})

	t.Run("returns error when kind is invalid", func(t *testing.T) {
		_, err := execute(e, []string{"event", "query", "--process-instance-id", processInstanceId, "--kind", "message"})
		assert.ErrorContains(err, "invalid event kind message")
	})
}

func TestSetTime(t *testing.T) {
	e := mustCreateEngine(t)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	mustExecute(t, e, []string{"set-time", "--time", future})

	_, err := execute(e, []string{"set-time", "--time", "tomorrow"})
	assert.Error(t, err)
}
