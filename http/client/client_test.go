package client

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/mem"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
	"github.com/gclaussn/go-flow/http/server"
	"github.com/gclaussn/go-flow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamAgent emits a message and waits for an external completion.
var streamAgent = engine.TaskExecutorFunc(func(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
	messageId := execution.TaskRunId() + "-1"

	execution.Emit(eventlog.EventMessageStart, eventlog.Payload{MessageId: messageId})
	execution.Emit(eventlog.EventMessageDelta, eventlog.Payload{MessageId: messageId, Delta: "Hello", Cumulative: "Hello"})
	execution.Emit(eventlog.EventMessageDelta, eventlog.Payload{MessageId: messageId, Delta: " world", Cumulative: "Hello world"})
	execution.Emit(eventlog.EventMessageEnd, eventlog.Payload{MessageId: messageId})

	signal, err := execution.AwaitSignal(ctx)
	if err != nil {
		return engine.Failed("ContextDone", err.Error())
	}
	return engine.Completed(signal.Variables)
})

func mustCreateClient(t *testing.T, customizers ...func(*server.Options)) engine.Engine {
	e, err := mem.New(func(o *mem.Options) {
		o.Common.Executors = map[string]engine.TaskExecutor{"agent": streamAgent}
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	s, err := server.New(e, append([]func(*server.Options){func(o *server.Options) {
		o.BasicAuthUsername = "test"
		o.BasicAuthPassword = "test"

		o.SetTimeEnabled = true
	}}, customizers...)...)
	if err != nil {
		t.Fatalf("failed to create HTTP server: %v", err)
	}

	httpServer := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		httpServer.Close()
		e.Shutdown()
	})

	authorization := "Basic " + base64.StdEncoding.EncodeToString([]byte("test:test"))

	client, err := New(httpServer.URL, authorization)
	if err != nil {
		t.Fatalf("failed to create HTTP client: %v", err)
	}

	t.Cleanup(client.Shutdown)
	return client
}

func mustReadDefinition(t *testing.T, fileName string) model.Definition {
	file, err := os.Open("../../test/definitions/" + fileName)
	if err != nil {
		t.Fatalf("failed to open definition file: %v", err)
	}

	defer file.Close()

	definition, err := model.ReadDefinition(file)
	if err != nil {
		t.Fatalf("failed to read definition: %v", err)
	}
	return definition
}

func mustCreateProcess(t *testing.T, client engine.Engine, fileName string) engine.Process {
	process, err := client.CreateProcess(context.Background(), engine.CreateProcessCmd{
		Definition: mustReadDefinition(t, fileName),
	})
	if err != nil {
		t.Fatalf("failed to create process: %v", err)
	}
	return process
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	_, err := New("", "Basic x")
	assert.EqualError(err, "URL is empty")

	_, err = New("http://localhost:8080", "")
	assert.EqualError(err, "authorization is empty")

	_, err = New("http://localhost:8080", "Basic x", func(o *Options) {
		o.Timeout = 0
	})
	assert.EqualError(err, "timeout must be greater than 0")
}

func TestProcess(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	client := mustCreateClient(t)

	t.Run("create process", func(t *testing.T) {
		// when
		process := mustCreateProcess(t, client, "task/user.yaml")

		// then
		assert.Equal("userTest", process.Id)
		assert.Equal("1", process.Version)
		assert.NotEmpty(process.CreatedAt)
		assert.Equal("approve", process.Definition.Elements[1].Id)
	})

	t.Run("create process again returns existing process", func(t *testing.T) {
		process := mustCreateProcess(t, client, "task/user.yaml")
		assert.Equal("userTest", process.Id)
	})

	t.Run("returns error when definition differs", func(t *testing.T) {
		definition := mustReadDefinition(t, "task/user.yaml")
		definition.Elements[1].Name = "Changed"

		_, err := client.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: definition})

		var engineErr engine.Error
		require.True(errors.As(err, &engineErr))
		assert.Equal(engine.ErrorConflict, engineErr.Type)
	})

	t.Run("returns error when definition is invalid", func(t *testing.T) {
		_, err := client.CreateProcess(context.Background(), engine.CreateProcessCmd{
			Definition: mustReadDefinition(t, "invalid/unreachable-end.yaml"),
		})

		var engineErr engine.Error
		require.True(errors.As(err, &engineErr))
		assert.Equal(engine.ErrorDefinitionInvalid, engineErr.Type)
		require.NotEmpty(engineErr.Causes)
		assert.NotEmpty(engineErr.Causes[0].Pointer)
	})

	t.Run("returns error when SLA deadlines are not ordered", func(t *testing.T) {
		_, err := client.CreateProcess(context.Background(), engine.CreateProcessCmd{
			Definition: mustReadDefinition(t, "invalid/sla-ordering.yaml"),
		})

		var engineErr engine.Error
		require.True(errors.As(err, &engineErr))
		assert.Equal(engine.ErrorInvalidSLAOrdering, engineErr.Type)
	})

	t.Run("returns problem when command is empty", func(t *testing.T) {
		_, err := client.CreateProcess(context.Background(), engine.CreateProcessCmd{})

		var problem common.Problem
		require.True(errors.As(err, &problem))
		assert.Equal(http.StatusBadRequest, problem.Status)
		assert.Equal(common.ProblemHttpRequestBody, problem.Type)
		assert.NotEmpty(problem.Title)
		assert.NotEmpty(problem.Detail)
		assert.NotEmpty(problem.Errors)
	})

	t.Run("returns problem when SLA offset is invalid", func(t *testing.T) {
		definition := mustReadDefinition(t, "task/user.yaml")
		definition.Elements[1].Properties.SLA = []model.SLA{{Kind: model.TimerWarning, Offset: "5 minutes"}}

		_, err := client.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: definition})

		var problem common.Problem
		require.True(errors.As(err, &problem))
		require.Len(problem.Errors, 1)
		assert.Equal("#/definition/elements/1/properties/sla/0/offset", problem.Errors[0].Pointer)
		assert.Equal("iso8601_duration", problem.Errors[0].Type)
	})
}

func TestProcessInstance(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	client := mustCreateClient(t)

	mustCreateProcess(t, client, "task/user.yaml")
	mustCreateProcess(t, client, "gateway/exclusive-no-default.yaml")

	t.Run("start, complete and wait", func(t *testing.T) {
		// given
		piAssert := engine.AssertStart(t, client, "userTest", map[string]any{"amount": 500.0})

		// when
		taskRun := piAssert.IsWaitingAt("approve")
		piAssert.CompleteTask(map[string]any{"approved": true})

		// then
		processInstance := piAssert.IsCompleted()
		assert.Equal("userTest", processInstance.ProcessId)
		assert.NotNil(processInstance.EndedAt)

		assert.Equal(true, piAssert.HasProcessVariable("approved"))
		assert.Equal(500.0, piAssert.HasProcessVariable("amount"))

		t.Run("get variables", func(t *testing.T) {
			variables, err := client.GetVariables(context.Background(), engine.GetVariablesCmd{
				ProcessInstanceId: processInstance.Id,
				Names:             []string{"approved"},
			})
			require.Nil(err)
			assert.Equal(map[string]any{"approved": true}, variables)
		})

		t.Run("second completion returns error", func(t *testing.T) {
			_, err := client.CompleteTask(context.Background(), engine.CompleteTaskCmd{CorrelationId: taskRun.CorrelationId})

			var engineErr engine.Error
			require.True(errors.As(err, &engineErr))
			assert.Equal(engine.ErrorAlreadyTerminal, engineErr.Type)
		})
	})

	t.Run("query", func(t *testing.T) {
		// given
		piAssert := engine.AssertStart(t, client, "userTest")
		piAssert.IsWaitingAt("approve")

		// when
		results, err := client.QueryProcessInstances(context.Background(), engine.ProcessInstanceCriteria{
			ProcessId: "userTest",
			Status:    engine.InstanceRunning,
		})
		require.Nil(err)

		// then
		require.Len(results, 1)
		assert.Equal(piAssert.ProcessInstance().Id, results[0].Id)

		results, err = client.QueryProcessInstances(context.Background(), engine.ProcessInstanceCriteria{
			ProcessId: "userTest",
			Options:   engine.QueryOptions{Limit: 1, Offset: 1},
		})
		require.Nil(err)
		assert.Len(results, 1)

		taskRuns, err := client.QueryTaskRuns(context.Background(), engine.TaskRunCriteria{
			ProcessInstanceId: piAssert.ProcessInstance().Id,
		})
		require.Nil(err)
		require.Len(taskRuns, 1)
		assert.Equal("approve", taskRuns[0].ElementId)
		assert.Equal(engine.TaskRunRunning, taskRuns[0].Status)
	})

	t.Run("cancel", func(t *testing.T) {
		// given
		piAssert := engine.AssertStart(t, client, "userTest")
		piAssert.IsWaitingAt("approve")

		// when
		_, err := client.CancelProcessInstance(context.Background(), engine.CancelProcessInstanceCmd{
			Id:     piAssert.ProcessInstance().Id,
			Reason: "obsolete",
		})
		require.Nil(err)

		// then
		piAssert.IsCancelled()

		taskRun := piAssert.WaitTaskRun("approve")
		assert.Equal(engine.TaskRunCancelled, taskRun.Status)
		assert.Equal("obsolete", taskRun.Reason)
	})

	t.Run("cancel task", func(t *testing.T) {
		// given
		piAssert := engine.AssertStart(t, client, "userTest")
		piAssert.IsWaitingAt("approve")

		// when
		piAssert.CancelTask("user request")

		// then
		taskRun := piAssert.WaitTaskRun("approve")
		assert.Equal(engine.TaskRunCancelled, taskRun.Status)
		assert.Equal("user request", taskRun.Reason)
	})

	t.Run("returns error when no flow is viable", func(t *testing.T) {
		_, err := client.StartProcessInstance(context.Background(), engine.StartProcessInstanceCmd{
			ProcessId: "exclusiveNoDefaultTest",
			Variables: map[string]any{"amount": 10},
		})

		var engineErr engine.Error
		require.True(errors.As(err, &engineErr))
		assert.Equal(engine.ErrorNoViableFlow, engineErr.Type)
	})

	t.Run("returns error when process instance is not found", func(t *testing.T) {
		_, err := client.GetProcessInstance(context.Background(), engine.GetProcessInstanceCmd{Id: "not-existing"})

		var engineErr engine.Error
		require.True(errors.As(err, &engineErr))
		assert.Equal(engine.ErrorNotFound, engineErr.Type)
	})

	t.Run("wait returns when context is done", func(t *testing.T) {
		piAssert := engine.AssertStart(t, client, "userTest")

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := client.WaitProcessInstance(ctx, engine.WaitProcessInstanceCmd{Id: piAssert.ProcessInstance().Id})
		assert.NotNil(err)
	})
}

func TestEvents(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	client := mustCreateClient(t)

	mustCreateProcess(t, client, "task/agent.yaml")

	piAssert := engine.AssertStart(t, client, "agentTest")
	piAssert.IsWaitingAt("analyze")

	processInstanceId := piAssert.ProcessInstance().Id

	t.Run("subscribe", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// when
		eventC, err := client.Subscribe(ctx, eventlog.Criteria{
			ProcessInstanceId: processInstanceId,
			ElementId:         "analyze",
		})
		require.Nil(err)

		var events []eventlog.Event
		for event := range eventC {
			events = append(events, event)
			if event.Kind == eventlog.EventMessageEnd {
				break
			}
		}

		// then
		require.NotEmpty(events)
		assert.Equal(eventlog.EventTaskStarted, events[0].Kind)

		snapshot, err := client.GetSnapshot(context.Background(), engine.GetSnapshotCmd{
			ProcessInstanceId: processInstanceId,
			ElementId:         "analyze",
		})
		require.Nil(err)

		assert.Equal(snapshot, eventlog.Fold(snapshot.ThreadId, events))
		require.Len(snapshot.Messages, 1)
		assert.Equal("Hello world", snapshot.Messages[0].Content)
	})

	t.Run("subscribe by kind", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		eventC, err := client.Subscribe(ctx, eventlog.Criteria{
			ProcessInstanceId: processInstanceId,
			ElementId:         "analyze",
			Kind:              eventlog.EventMessageDelta,
		})
		require.Nil(err)

		event := <-eventC
		assert.Equal(eventlog.EventMessageDelta, event.Kind)
		assert.Equal("Hello", event.Payload.Delta)

		event = <-eventC
		assert.Equal(" world", event.Payload.Delta)
	})

	t.Run("subscribe returns error when element ID is missing", func(t *testing.T) {
		_, err := client.Subscribe(context.Background(), eventlog.Criteria{ProcessInstanceId: processInstanceId})

		var engineErr engine.Error
		require.True(errors.As(err, &engineErr))
		assert.Equal(engine.ErrorValidation, engineErr.Type)
	})

	t.Run("query", func(t *testing.T) {
		events, err := client.QueryEvents(context.Background(), eventlog.Criteria{
			ProcessInstanceId: processInstanceId,
			ElementId:         "analyze",
			Kind:              eventlog.EventMessageDelta,
		})
		require.Nil(err)

		require.Len(events, 2)
		assert.Equal("Hello world", events[1].Payload.Cumulative)
	})

	t.Run("clear history", func(t *testing.T) {
		// given
		piAssert.CompleteTask()
		piAssert.IsCompleted()

		// when
		err := client.ClearHistory(context.Background(), engine.ClearHistoryCmd{
			ProcessInstanceId: processInstanceId,
			ElementId:         "analyze",
		})
		require.Nil(err)

		// then
		events, err := client.QueryEvents(context.Background(), eventlog.Criteria{
			ProcessInstanceId: processInstanceId,
			ElementId:         "analyze",
		})
		require.Nil(err)
		assert.Empty(events)
	})
}

func TestSetTime(t *testing.T) {
	assert := assert.New(t)

	t.Run("set time", func(t *testing.T) {
		client := mustCreateClient(t)

		err := client.SetTime(context.Background(), engine.SetTimeCmd{Time: time.Now().Add(time.Hour)})
		assert.Nil(err)
	})

	t.Run("returns error when not enabled", func(t *testing.T) {
		client := mustCreateClient(t, func(o *server.Options) {
			o.SetTimeEnabled = false
		})

		err := client.SetTime(context.Background(), engine.SetTimeCmd{Time: time.Now().Add(time.Hour)})
		assert.ErrorContains(err, "HTTP 403")
	})
}
