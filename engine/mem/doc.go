// Package mem implements an in-memory process engine.
/*
mem provides a full implementation of the [engine.Engine] interface. Process instances are kept in memory:
running instances in a registry, ended instances in a bounded archive, which evicts by size and age.
Events are appended to an in-memory event log, unless another [eventlog.Store] is configured.

Create an Engine

	e, err := mem.New(func(o *mem.Options) {
		o.Common.EngineId = "my-mem-engine"
		o.Common.Executors = map[string]engine.TaskExecutor{
			"payment": worker.Service(checkLimit),
		}
	})
	if err != nil {
		log.Fatalf("failed to create mem engine: %v", err)
	}

	defer e.Shutdown()
*/
package mem
