package worker

import (
	"context"

	"github.com/gclaussn/go-flow/engine"
)

// Callback creates an executor, which suspends a task run, until it is resolved externally via
// [engine.Engine.CompleteTask], using the correlation ID of its task.started event.
//
// The task run completes with the signal's variables or fails with the signal's error code.
// A cancellation is honored immediately.
func Callback() engine.TaskExecutor {
	return engine.TaskExecutorFunc(func(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
		execution.Logger().Debug("awaiting callback", "correlationId", execution.CorrelationId())

		signal, err := execution.AwaitSignal(ctx)
		if outcome, ok := cancelled(err, ""); ok {
			return outcome
		}
		if err != nil {
			return engine.Failed(ErrorCodeContextDone, err.Error())
		}

		if signal.ErrorCode != "" {
			return engine.Failed(signal.ErrorCode, signal.ErrorMessage)
		}
		return engine.Completed(signal.Variables)
	})
}
