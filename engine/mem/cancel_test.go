package mem

import (
	"context"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamingAgent emits the chunks of a message and waits for a cancel request afterwards. When cancelled, the
// content, streamed so far, is returned as partial result.
func streamingAgent(chunks ...string) engine.TaskExecutor {
	return engine.TaskExecutorFunc(func(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
		if err := execution.Emit(eventlog.EventMessageStart, eventlog.Payload{MessageId: "m1"}); err != nil {
			return engine.Failed("EmitFailed", err.Error())
		}

		var content string
		for {
			if err := execution.Checkpoint(engine.CheckpointChunk); err != nil {
				cancelRequest, _ := engine.IsCancelRequest(err)
				return engine.Cancelled(content, cancelRequest.Reason)
			}

			if len(chunks) != 0 {
				content += chunks[0]
				if err := execution.Emit(eventlog.EventMessageDelta, eventlog.Payload{MessageId: "m1", Delta: chunks[0]}); err != nil {
					return engine.Failed("EmitFailed", err.Error())
				}
				chunks = chunks[1:]
				continue
			}

			select {
			case <-ctx.Done():
				return engine.Failed("ContextDone", ctx.Err().Error())
			case <-time.After(5 * time.Millisecond):
			}
		}
	})
}

// awaitEvents waits until an element's event log contains n events of a kind.
func awaitEvents(t *testing.T, piAssert *engine.ProcessInstanceAssert, elementId string, kind eventlog.EventKind, n int) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var count int
		for _, e := range piAssert.Events(elementId) {
			if e.Kind == kind {
				count++
			}
		}
		if count >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d %s events of %s", n, kind, elementId)
}

func TestCancelTask(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	t.Run("partial result is routed via error boundary event", func(t *testing.T) {
		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"agent": streamingAgent("Based", " on", " the"),
		}))

		piAssert := mustStart(t, e, "event/agent-cancel-boundary.yaml")

		piAssert.IsWaitingAt("analyze")
		awaitEvents(t, piAssert, "analyze", eventlog.EventMessageDelta, 3)

		taskRun := piAssert.CancelTask("user abort")
		assert.Equal(engine.TaskRunCancelling, taskRun.Status)
		assert.True(taskRun.CancellationRequested)

		piAssert.IsWaitingAt("summarizePartial")

		taskRun = piAssert.WaitTaskRun("analyze")
		assert.Equal(engine.TaskRunCancelled, taskRun.Status)
		assert.Equal(engine.ErrorCodeCancelledByUser, taskRun.ErrorCode)
		assert.Equal("Based on the", taskRun.PartialResult)
		assert.Equal("user abort", taskRun.Reason)

		event := piAssert.HasEvent("analyze", eventlog.EventCancelled)
		assert.Equal("Based on the", event.Payload.PartialResult)
		assert.Equal("user abort", event.Payload.Reason)

		snapshot, err := e.GetSnapshot(context.Background(), engine.GetSnapshotCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
			ElementId:         "analyze",
		})
		require.Nil(err)

		assert.Equal(taskRun.ThreadId, snapshot.ThreadId)
		require.Len(snapshot.Messages, 1)
		assert.Equal("Based on the", snapshot.Messages[0].Content)
		assert.Equal(eventlog.MessageCancelled, snapshot.Messages[0].Status)

		piAssert.IsWaitingAt("summarizePartial")
		piAssert.CompleteTask()
		piAssert.IsCompleted()
	})

	t.Run("process instance is cancelled when no path is modeled", func(t *testing.T) {
		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"agent": streamingAgent("Based"),
		}))

		piAssert := mustStart(t, e, "task/agent.yaml")

		piAssert.IsWaitingAt("analyze")
		piAssert.CancelTask("")
		piAssert.IsCancelled()

		taskRun := piAssert.WaitTaskRun("analyze")
		assert.Equal(engine.TaskRunCancelled, taskRun.Status)
	})

	t.Run("repeated request is acknowledged", func(t *testing.T) {
		executor := newBlockingExecutor(false)

		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{"agent": executor}))

		piAssert := mustStart(t, e, "task/agent.yaml")
		executor.awaitStart(t)

		taskRun := piAssert.IsWaitingAt("analyze")

		cmd := engine.CancelTaskCmd{ProcessInstanceId: taskRun.ProcessInstanceId, ElementId: "analyze", Reason: "first"}

		taskRun1, err := e.CancelTask(context.Background(), cmd)
		require.Nil(err)
		assert.Equal(engine.TaskRunCancelling, taskRun1.Status)

		cmd.Reason = "second"

		taskRun2, err := e.CancelTask(context.Background(), cmd)
		require.Nil(err)
		assert.Equal(engine.TaskRunCancelling, taskRun2.Status)
		assert.Equal("first", taskRun2.Reason)

		executor.release <- engine.Cancelled("partial", "")

		piAssert.IsCancelled()

		taskRun = piAssert.WaitTaskRun("analyze")
		assert.Equal(engine.TaskRunCancelled, taskRun.Status)
		assert.Equal("first", taskRun.Reason)
		assert.Equal("partial", taskRun.PartialResult)

		events := piAssert.Events("analyze")

		var requested int
		for _, event := range events {
			if event.Kind == eventlog.EventCancelRequested {
				requested++
			}
		}
		assert.Equal(1, requested)
	})

	t.Run("completion is rejected while cancelling", func(t *testing.T) {
		executor := newBlockingExecutor(false)

		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{"agent": executor}))

		piAssert := mustStart(t, e, "task/agent.yaml")
		executor.awaitStart(t)

		taskRun := piAssert.IsWaitingAt("analyze")

		_, err := e.CancelTask(context.Background(), engine.CancelTaskCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
			ElementId:         "analyze",
			Reason:            "user",
		})
		require.Nil(err)

		// when
		completed, err := e.CompleteTask(context.Background(), engine.CompleteTaskCmd{
			CorrelationId: taskRun.CorrelationId,
			Variables:     map[string]any{"summary": "late"},
		})

		// then
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorAlreadyTerminal, err.(engine.Error).Type)
		assert.Equal(engine.TaskRunCancelling, completed.Status)

		executor.release <- engine.Cancelled("partial", "")

		piAssert.IsCancelled()
		piAssert.HasNoProcessVariable("summary")
	})

	t.Run("returns error when element does not allow cancellation", func(t *testing.T) {
		executor := newBlockingExecutor(true)

		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{"agent": executor}))

		piAssert := mustStart(t, e, "task/agent-not-cancellable.yaml")
		executor.awaitStart(t)

		taskRun := piAssert.IsWaitingAt("analyze")
		assert.False(taskRun.Cancellable)

		_, err := e.CancelTask(context.Background(), engine.CancelTaskCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
			ElementId:         "analyze",
			Reason:            "please",
		})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorNotCancellable, err.(engine.Error).Type)

		event := piAssert.HasEvent("analyze", eventlog.EventCancelFailed)
		assert.Equal("NotCancellable", event.Payload.Reason)
		assert.Equal("please", event.Payload.Message)

		executor.release <- engine.Completed(nil)
		piAssert.IsCompleted()
	})

	t.Run("returns error when task run has ended", func(t *testing.T) {
		e := mustCreateEngine(t)

		piAssert := mustStart(t, e, "gateway/parallel.yaml")

		taskRun := piAssert.IsWaitingAt("taskA")
		piAssert.CompleteTask()

		_, err := e.CancelTask(context.Background(), engine.CancelTaskCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
			ElementId:         "taskA",
		})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorAlreadyTerminal, err.(engine.Error).Type)

		event := piAssert.HasEvent("taskA", eventlog.EventCancelFailed)
		assert.Equal("AlreadyTerminal", event.Payload.Reason)
	})

	t.Run("returns error when process instance has ended", func(t *testing.T) {
		e := mustCreateEngine(t)

		piAssert := mustStart(t, e, "task/user.yaml")

		taskRun := piAssert.IsWaitingAt("approve")
		piAssert.CompleteTask()
		piAssert.IsCompleted()

		_, err := e.CancelTask(context.Background(), engine.CancelTaskCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
			ElementId:         "approve",
		})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorAlreadyTerminal, err.(engine.Error).Type)

		event := piAssert.HasEvent("approve", eventlog.EventCancelFailed)
		assert.Equal("AlreadyTerminal", event.Payload.Reason)
		assert.Equal(taskRun.Id, event.Payload.TaskRunId)
	})

	t.Run("returns error when element has no task run", func(t *testing.T) {
		e := mustCreateEngine(t)

		piAssert := mustStart(t, e, "task/user.yaml")

		taskRun := piAssert.IsWaitingAt("approve")

		_, err := e.CancelTask(context.Background(), engine.CancelTaskCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
			ElementId:         "endEvent",
		})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorNotFound, err.(engine.Error).Type)

		_, err = e.CancelTask(context.Background(), engine.CancelTaskCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
			ElementId:         "approve",
			ThreadId:          "other",
		})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorNotFound, err.(engine.Error).Type)

		_, err = e.CancelTask(context.Background(), engine.CancelTaskCmd{
			ProcessInstanceId: taskRun.ProcessInstanceId,
		})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorValidation, err.(engine.Error).Type)
	})

	t.Run("user task is cancelled immediately", func(t *testing.T) {
		e := mustCreateEngine(t)

		piAssert := mustStart(t, e, "task/user.yaml")

		piAssert.IsWaitingAt("approve")

		taskRun := piAssert.CancelTask("not needed")
		assert.Equal(engine.TaskRunCancelled, taskRun.Status)
		assert.Equal(engine.ErrorCodeCancelledByUser, taskRun.ErrorCode)

		piAssert.IsCancelled()
	})
}

func TestCancelProcessInstance(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	t.Run("user tasks", func(t *testing.T) {
		e := mustCreateEngine(t)

		piAssert := mustStart(t, e, "gateway/parallel.yaml")

		piAssert.IsWaitingAt("taskA")
		piAssert.CompleteTask()

		processInstance, err := e.CancelProcessInstance(context.Background(), engine.CancelProcessInstanceCmd{
			Id:     piAssert.ProcessInstance().Id,
			Reason: "obsolete",
		})
		require.Nil(err)
		assert.Equal(engine.InstanceCancelled, processInstance.Status)

		piAssert.IsCancelled()

		for _, elementId := range []string{"taskB", "taskC"} {
			taskRun := piAssert.WaitTaskRun(elementId)
			assert.Equal(engine.TaskRunCancelled, taskRun.Status)
			assert.Equal("obsolete", taskRun.Reason)
		}

		// repeated cancel
		_, err = e.CancelProcessInstance(context.Background(), engine.CancelProcessInstanceCmd{Id: processInstance.Id})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorAlreadyTerminal, err.(engine.Error).Type)
	})

	t.Run("executor honors cancel request", func(t *testing.T) {
		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"agent": streamingAgent("Based", " on"),
		}))

		piAssert := mustStart(t, e, "task/agent.yaml")

		piAssert.IsWaitingAt("analyze")
		awaitEvents(t, piAssert, "analyze", eventlog.EventMessageDelta, 2)

		_, err := e.CancelProcessInstance(context.Background(), engine.CancelProcessInstanceCmd{Id: piAssert.ProcessInstance().Id})
		require.Nil(err)

		piAssert.IsCancelled()

		taskRun := piAssert.WaitTaskRun("analyze")
		assert.Equal(engine.TaskRunCancelled, taskRun.Status)
		assert.Equal("process instance cancelled", taskRun.Reason)
		assert.Equal("Based on", taskRun.PartialResult)
	})

	t.Run("task run, which does not allow cancellation, completes", func(t *testing.T) {
		executor := newBlockingExecutor(true)

		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{"agent": executor}))

		piAssert := mustStart(t, e, "task/agent-not-cancellable.yaml")
		executor.awaitStart(t)

		piAssert.IsWaitingAt("analyze")

		processInstance, err := e.CancelProcessInstance(context.Background(), engine.CancelProcessInstanceCmd{Id: piAssert.ProcessInstance().Id})
		require.Nil(err)
		assert.Equal(engine.InstanceRunning, processInstance.Status)

		piAssert.HasEvent("analyze", eventlog.EventCancelFailed)

		executor.release <- engine.Completed(map[string]any{"report": "done"})

		piAssert.IsCancelled()

		taskRun := piAssert.WaitTaskRun("analyze")
		assert.Equal(engine.TaskRunCompleted, taskRun.Status)
		assert.Equal("done", piAssert.HasProcessVariable("report"))
	})

	t.Run("returns error when process instance not exists", func(t *testing.T) {
		e := mustCreateEngine(t)

		_, err := e.CancelProcessInstance(context.Background(), engine.CancelProcessInstanceCmd{Id: "not-existing"})
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorNotFound, err.(engine.Error).Type)
	})
}
