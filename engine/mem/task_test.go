package mem

import (
	"context"
	"testing"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/internal"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTask(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	e := mustCreateEngine(t)

	process := mustCreateProcess(t, e, "task/user.yaml")

	t.Run("complete", func(t *testing.T) {
		piAssert := engine.AssertStart(t, e, process.Id, map[string]any{"a": "b"})

		taskRun := piAssert.IsWaitingAt("approve")
		assert.Equal(engine.TaskRunRunning, taskRun.Status)
		assert.True(taskRun.Cancellable)
		assert.NotEmpty(taskRun.CorrelationId)
		assert.Equal(internal.ThreadId(taskRun.ProcessInstanceId, "approve"), taskRun.ThreadId)
		assert.NotNil(taskRun.StartedAt)

		piAssert.CompleteTask(map[string]any{"approved": true})
		piAssert.IsCompleted()

		assert.Equal("b", piAssert.HasProcessVariable("a"))
		assert.Equal(true, piAssert.HasProcessVariable("approved"))

		events := piAssert.Events("approve")
		require.Len(events, 3)
		assert.Equal(eventlog.EventTaskStarted, events[0].Kind)
		assert.Equal(taskRun.CorrelationId, events[0].Payload.CorrelationId)
		assert.Equal(eventlog.EventCancellable, events[1].Kind)
		assert.Equal(eventlog.EventTaskCompleted, events[2].Kind)

		for i, event := range events {
			assert.Equal(int64(i+1), event.Sequence)
			assert.Equal(taskRun.Id, event.Payload.TaskRunId)
		}
	})

	t.Run("complete with error", func(t *testing.T) {
		piAssert := engine.AssertStart(t, e, process.Id)

		piAssert.IsWaitingAt("approve")
		piAssert.CompleteTaskWithError("Rejected", "request rejected")

		processInstance := piAssert.IsFailed()
		require.NotNil(processInstance.Failure)
		assert.Equal("approve", processInstance.Failure.ElementId)
		assert.Equal(engine.ErrorTaskFailure, processInstance.Failure.Type)
		assert.Equal("Rejected", processInstance.Failure.ErrorCode)
		assert.Equal("request rejected", processInstance.Failure.Message)

		taskRun := piAssert.WaitTaskRun("approve")
		assert.Equal(engine.TaskRunFailed, taskRun.Status)
		assert.Equal("Rejected", taskRun.ErrorCode)
	})

	t.Run("returns error when task run is resolved twice", func(t *testing.T) {
		piAssert := engine.AssertStart(t, e, process.Id)

		taskRun := piAssert.IsWaitingAt("approve")
		piAssert.CompleteTask()
		piAssert.IsCompleted()

		_, err := e.CompleteTask(context.Background(), engine.CompleteTaskCmd{CorrelationId: taskRun.CorrelationId})
		require.IsTypef(engine.Error{}, err, "expected engine error")

		engineErr := err.(engine.Error)
		assert.Equal(engine.ErrorAlreadyTerminal, engineErr.Type)
	})

	t.Run("returns error when correlation ID not exists", func(t *testing.T) {
		_, err := e.CompleteTask(context.Background(), engine.CompleteTaskCmd{CorrelationId: "not-existing"})
		require.IsTypef(engine.Error{}, err, "expected engine error")

		engineErr := err.(engine.Error)
		assert.Equal(engine.ErrorNotFound, engineErr.Type)
	})
}

func TestServiceTask(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	t.Run("complete", func(t *testing.T) {
		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"echo": engine.TaskExecutorFunc(func(_ context.Context, execution engine.Execution) engine.TaskOutcome {
				return engine.Completed(map[string]any{"echo": execution.Variables()["input"]})
			}),
		}))

		piAssert := mustStart(t, e, "task/service.yaml", map[string]any{"input": "hello"})
		piAssert.IsCompleted()

		piAssert.HasPassed("serviceTask")
		assert.Equal("hello", piAssert.HasProcessVariable("echo"))
	})

	t.Run("fails when executor is not registered", func(t *testing.T) {
		e := mustCreateEngine(t)

		piAssert := mustStart(t, e, "task/service.yaml")

		processInstance := piAssert.IsFailed()
		require.NotNil(processInstance.Failure)
		assert.Equal("serviceTask", processInstance.Failure.ElementId)
		assert.Equal(internal.ErrorCodeExecutorNotFound, processInstance.Failure.ErrorCode)

		taskRun := piAssert.WaitTaskRun("serviceTask")
		assert.Equal(engine.TaskRunFailed, taskRun.Status)
	})

	t.Run("fails when executor fails", func(t *testing.T) {
		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"echo": failWith("EchoFailed"),
		}))

		piAssert := mustStart(t, e, "task/service.yaml")

		processInstance := piAssert.IsFailed()
		require.NotNil(processInstance.Failure)
		assert.Equal(engine.ErrorTaskFailure, processInstance.Failure.Type)
		assert.Equal("EchoFailed", processInstance.Failure.ErrorCode)

		event := piAssert.HasEvent("serviceTask", eventlog.EventTaskFailed)
		assert.Equal("EchoFailed", event.Payload.ErrorCode)
		assert.Equal("failed on purpose", event.Payload.Message)
	})

	t.Run("fails when executor panics", func(t *testing.T) {
		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"echo": engine.TaskExecutorFunc(func(context.Context, engine.Execution) engine.TaskOutcome {
				panic("test")
			}),
		}))

		piAssert := mustStart(t, e, "task/service.yaml")

		processInstance := piAssert.IsFailed()
		require.NotNil(processInstance.Failure)
		assert.Equal("ExecutorPanic", processInstance.Failure.ErrorCode)
	})

	t.Run("complete via signal", func(t *testing.T) {
		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"echo": engine.TaskExecutorFunc(func(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
				signal, err := execution.AwaitSignal(ctx)
				if err != nil {
					return engine.Failed("AwaitFailed", err.Error())
				}
				if signal.ErrorCode != "" {
					return engine.Failed(signal.ErrorCode, signal.ErrorMessage)
				}
				return engine.Completed(signal.Variables)
			}),
		}))

		piAssert := mustStart(t, e, "task/service.yaml")

		piAssert.IsWaitingAt("serviceTask")
		piAssert.CompleteTask(map[string]any{"signalled": true})
		piAssert.IsCompleted()

		assert.Equal(true, piAssert.HasProcessVariable("signalled"))
	})

	t.Run("returns error when emitting a lifecycle event", func(t *testing.T) {
		errs := make(chan error, 1)

		e := mustCreateEngine(t, withExecutors(map[string]engine.TaskExecutor{
			"echo": engine.TaskExecutorFunc(func(_ context.Context, execution engine.Execution) engine.TaskOutcome {
				errs <- execution.Emit(eventlog.EventTaskCompleted, eventlog.Payload{})
				return engine.Completed(nil)
			}),
		}))

		piAssert := mustStart(t, e, "task/service.yaml")
		piAssert.IsCompleted()

		err := <-errs
		require.IsTypef(engine.Error{}, err, "expected engine error")
		assert.Equal(engine.ErrorValidation, err.(engine.Error).Type)
	})
}

func TestVariableConflict(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	registry := prometheus.NewRegistry()

	e := mustCreateEngine(t, func(o *Options) {
		o.Common.Registerer = registry
	})

	piAssert := mustStart(t, e, "gateway/parallel.yaml")

	piAssert.IsWaitingAt("taskA")
	piAssert.CompleteTask(map[string]any{"result": "a"})

	piAssert.IsWaitingAt("taskB")
	piAssert.CompleteTask(map[string]any{"result": "b"})

	// last writer wins
	assert.Equal("b", piAssert.HasProcessVariable("result"))

	piAssert.IsWaitingAt("taskC")
	piAssert.CompleteTask(map[string]any{"other": "c"})

	piAssert.IsWaitingAt("afterJoin")

	// afterJoin started after the writes, so that no conflict is reported
	piAssert.CompleteTask(map[string]any{"result": "after"})
	piAssert.IsCompleted()

	assert.Equal("after", piAssert.HasProcessVariable("result"))

	value, err := gatherCounter(registry, "goflow_variable_conflicts_total")
	require.Nil(err)
	assert.Equal(1.0, value)
}

// gatherCounter returns the sum of all series of a counter.
func gatherCounter(registry *prometheus.Registry, name string) (float64, error) {
	metricFamilies, err := registry.Gather()
	if err != nil {
		return 0, err
	}

	var value float64
	for _, metricFamily := range metricFamilies {
		if metricFamily.GetName() != name {
			continue
		}
		for _, metric := range metricFamily.GetMetric() {
			value += metric.GetCounter().GetValue()
		}
	}
	return value, nil
}
