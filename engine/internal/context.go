package internal

import (
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/model"
	"github.com/hashicorp/go-hclog"
)

// Env provides the runtime dependencies, shared by all process instances of an engine.
type Env struct {
	Clock        *Clock
	Scheduler    *Scheduler
	EventLog     eventlog.Store
	Executors    map[string]engine.TaskExecutor
	Logger       hclog.Logger
	Metrics      *Metrics
	Correlations *Correlations

	CancelGracePeriod time.Duration
	DefaultRetryLimit int
	InboxSize         int

	// OnEnd is called once, when a process instance has ended.
	OnEnd func(*Instance)
}

// executor resolves the executor of a task element by name, falling back to the element ID.
func (env *Env) executor(element *model.Element) (engine.TaskExecutor, bool) {
	name := element.Properties.Executor
	if name == "" {
		name = element.Id
	}
	executor, ok := env.Executors[name]
	return executor, ok
}
