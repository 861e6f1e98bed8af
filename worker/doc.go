// Package worker provides task executors for service, agent and script tasks.
/*
worker offers executors, which implement [engine.TaskExecutor] and can be registered with an engine by name.
An element references an executor via its "executor" property.

Service Task

A [Handler] implements the business logic of a service task. Failed attempts are retried with exponential
backoff, until the element's retry limit is reached. A [TaskError] fails the task run without retry.

	checkLimit := func(tc worker.TaskContext) error {
		var order Order
		if err := tc.Variables().Decode("order", &order); err != nil {
			return err
		}
		if order.Amount > 1000 {
			return worker.NewTaskError("PaymentLimitExceeded", "amount exceeds limit of 1000")
		}
		tc.SetVariables(worker.Variables{"approved": true})
		return nil
	}

Agent Task

A [Source] streams the chunks of an agent's response. [Stream] records them as progress events and
returns the text, streamed so far, as partial result, when a cancellation is honored.

	agent := worker.Stream(func(ctx context.Context, execution engine.Execution) (worker.Source, error) {
		return newModelSource(ctx, execution.Variables())
	}, map[string]worker.Tool{
		"search": search,
	})

Register Executors

	e, err := mem.New(func(o *mem.Options) {
		o.Common.Executors = map[string]engine.TaskExecutor{
			"agent":    agent,
			"callback": worker.Callback(),
			"payment":  worker.Service(checkLimit),
			"script":   worker.Script(),
		}
	})
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

Test an Executor

[Assert] executes an executor without an engine:

	a := worker.Assert(t, agent)
	a.AwaitEvents(eventlog.EventMessageDelta, 1)
	a.Cancel("user request")

	outcome := a.Outcome()
*/
package worker
