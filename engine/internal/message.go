package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gclaussn/go-flow/engine"
)

func NewCorrelations() *Correlations {
	return &Correlations{byId: make(map[string]correlation)}
}

// Correlations maps the correlation IDs of task runs to process instances. A correlation is kept, until the
// process instance is removed, so that a repeated resolution can be detected.
type Correlations struct {
	mutex sync.RWMutex
	byId  map[string]correlation
}

type correlation struct {
	instance *Instance
	runId    string
}

func (c *Correlations) Register(correlationId string, instance *Instance, runId string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.byId[correlationId] = correlation{instance: instance, runId: runId}
}

func (c *Correlations) Lookup(correlationId string) (*Instance, string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	v, ok := c.byId[correlationId]
	return v.instance, v.runId, ok
}

// RemoveInstance removes all correlations of a process instance.
func (c *Correlations) RemoveInstance(processInstanceId string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for correlationId, v := range c.byId {
		if v.instance.id == processInstanceId {
			delete(c.byId, correlationId)
		}
	}
}

// CompleteTask resolves a task run externally. A user task completes or fails directly, while a task run,
// backed by an executor, receives the signal via [engine.Execution.AwaitSignal]. A gateway, that cannot be
// passed afterwards, fails the completion with [engine.ErrorNoViableFlow] and nothing is recorded.
func CompleteTask(ctx context.Context, correlations *Correlations, cmd engine.CompleteTaskCmd) (engine.TaskRun, error) {
	i, runId, ok := correlations.Lookup(cmd.CorrelationId)
	if !ok {
		return engine.TaskRun{}, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  "failed to complete task",
			Detail: fmt.Sprintf("task run with correlation ID %s could not be found", cmd.CorrelationId),
		}
	}

	var (
		taskRun engine.TaskRun
		result  error
	)

	err := i.call(ctx, func(st *step) error {
		st.sync = true

		run := st.state.run(runId)
		if run == nil {
			result = engine.Error{
				Type:   engine.ErrorNotFound,
				Title:  "failed to complete task",
				Detail: fmt.Sprintf("task run with correlation ID %s could not be found", cmd.CorrelationId),
			}
			return nil
		}

		if run.resolved || run.Status.IsTerminal() || run.Status == engine.TaskRunCancelling {
			taskRun = run.TaskRun
			result = alreadyResolved(run.TaskRun)
			return nil
		}

		run.resolved = true

		var err error
		if run.userTask {
			if cmd.ErrorCode != "" {
				err = st.failRun(run, cmd.ErrorCode, cmd.ErrorMessage, engine.ErrorTaskFailure)
			} else {
				err = st.completeRun(run, cmd.Variables)
			}
		} else {
			signal := engine.Signal{
				ErrorCode:    cmd.ErrorCode,
				ErrorMessage: cmd.ErrorMessage,
				Variables:    cmd.Variables,
			}
			st.effect(func() {
				st.instance.signal(runId, signal)
			})
		}

		taskRun = run.TaskRun
		return err
	})
	if errors.Is(err, errEnded) {
		for _, run := range i.TaskRuns() {
			if run.Id == runId {
				return run, alreadyResolved(run)
			}
		}
	}
	if err != nil {
		return engine.TaskRun{}, err
	}

	return taskRun, result
}

func alreadyResolved(taskRun engine.TaskRun) error {
	return engine.Error{
		Type:   engine.ErrorAlreadyTerminal,
		Title:  "failed to complete task",
		Detail: fmt.Sprintf("task run %s has already been resolved or is %s", taskRun.Id, taskRun.Status),
	}
}
