package internal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/hashicorp/go-hclog"
)

// errEnded is returned, when a message is posted to an instance, whose loop has already stopped.
var errEnded = errors.New("process instance has ended")

// Instance is a running or ended process instance.
//
// A single loop goroutine owns the instance. It processes the messages of the inbox one after another, each
// as an atomic step. Readers access the state, committed by the latest step.
type Instance struct {
	env     *Env
	process *Process
	logger  hclog.Logger

	id        string
	createdAt time.Time

	inbox   chan func()
	done    chan struct{} // closed, when the instance has ended
	stopped chan struct{} // closed, when the loop has returned

	ctx    context.Context // parent of all executor contexts
	cancel context.CancelFunc

	mutex sync.RWMutex
	state *state

	handles map[string]*runHandle // loop goroutine only
}

// Start starts a process instance synchronously. When the first advance fails, an error is returned and
// nothing is recorded.
func Start(ctx context.Context, env *Env, process *Process, id string, variables map[string]any) (*Instance, error) {
	execCtx, cancel := context.WithCancel(context.Background())

	i := &Instance{
		env:     env,
		process: process,
		logger:  env.Logger.Named("instance").With("id", id),

		id:        id,
		createdAt: env.Clock.Now(),

		inbox:   make(chan func(), env.InboxSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),

		ctx:    execCtx,
		cancel: cancel,

		state: newState(maps.Clone(variables)),

		handles: make(map[string]*runHandle),
	}

	st, err := i.prepare(func(st *step) error {
		st.sync = true
		return st.enter(st.newToken(false), process.Start, nil)
	})
	if err == nil {
		err = i.commit(ctx, st)
	}
	if err != nil {
		cancel()
		env.Correlations.RemoveInstance(id)
		return nil, err
	}

	env.Metrics.InstancesStarted.Inc()
	i.logger.Debug("process instance started", "process", process.String())

	// effects are applied before the loop starts, since the loop goroutine owns the handles afterwards
	st.applyEffects()
	go i.loop()

	return i, nil
}

func (i *Instance) Id() string {
	return i.id
}

func (i *Instance) CreatedAt() time.Time {
	return i.createdAt
}

func (i *Instance) Process() *Process {
	return i.process
}

// Done returns a channel, which is closed when the process instance has ended.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

func (i *Instance) ProcessInstance() engine.ProcessInstance {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.state.processInstance(i)
}

// TaskRuns returns the task runs in creation order.
func (i *Instance) TaskRuns() []engine.TaskRun {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	taskRuns := make([]engine.TaskRun, len(i.state.runs))
	for j, run := range i.state.runs {
		taskRuns[j] = run.TaskRun
	}
	return taskRuns
}

// Variables returns the variables with the given names or all variables, if no names are given.
func (i *Instance) Variables(names []string) map[string]any {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	if len(names) == 0 {
		return maps.Clone(i.state.variables)
	}

	variables := make(map[string]any, len(names))
	for _, name := range names {
		if value, ok := i.state.variables[name]; ok {
			variables[name] = value
		}
	}
	return variables
}

// Traversed returns the IDs of all sequence flows, taken by a token, sorted by ID.
func (i *Instance) Traversed() []string {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	traversed := slices.Collect(maps.Keys(i.state.traversed))
	slices.Sort(traversed)
	return traversed
}

// Shutdown stops the loop and cancels the context of all running executors.
func (i *Instance) Shutdown() {
	i.cancel()
	i.post(nil)
}

func (i *Instance) loop() {
	defer close(i.stopped)

	for {
		select {
		case msg := <-i.inbox:
			if msg == nil {
				return // shutdown
			}
			msg()
		case <-i.done:
			return
		}

		select {
		case <-i.done:
			return
		default:
		}
	}
}

// call processes fn as an atomic step and waits for the result.
func (i *Instance) call(ctx context.Context, fn func(*step) error) error {
	result := make(chan error, 1)

	msg := func() {
		result <- i.apply(fn)
	}

	select {
	case i.inbox <- msg:
	case <-i.stopped:
		return errEnded
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-i.stopped:
		select {
		case err := <-result:
			return err
		default:
			return errEnded
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post processes fn as an atomic step without waiting. A nil fn stops the loop.
func (i *Instance) post(fn func(*step) error) {
	var msg func()
	if fn != nil {
		msg = func() {
			if err := i.apply(fn); err != nil {
				i.logger.Error("failed to process message", "err", err)
			}
		}
	}

	select {
	case i.inbox <- msg:
	case <-i.stopped:
	}
}

// apply runs fn on a cloned state. If fn succeeds, the buffered events are appended in one batch, the new
// state is committed and the collected effects are applied. Otherwise, nothing changes.
func (i *Instance) apply(fn func(*step) error) error {
	start := time.Now()
	defer func() {
		i.env.Metrics.StepDuration.Observe(time.Since(start).Seconds())
	}()

	st, err := i.prepare(fn)
	if err != nil {
		return err
	}
	if err := i.commit(context.Background(), st); err != nil {
		return err
	}

	st.applyEffects()
	return nil
}

func (i *Instance) prepare(fn func(*step) error) (*step, error) {
	st := &step{
		instance: i,
		state:    i.state.clone(), // only the loop goroutine writes, so no lock is needed
		now:      i.env.Clock.Now(),
	}

	st.state.seq++

	if err := fn(st); err != nil {
		return nil, err
	}
	if err := st.settle(); err != nil {
		return nil, err
	}
	return st, nil
}

func (i *Instance) commit(ctx context.Context, st *step) error {
	if len(st.events) != 0 {
		if _, err := i.env.EventLog.Append(ctx, st.events...); err != nil {
			return fmt.Errorf("failed to append %d events: %v", len(st.events), err)
		}
	}

	for correlationId, runId := range st.correlations {
		i.env.Correlations.Register(correlationId, i, runId)
	}

	i.mutex.Lock()
	i.state = st.state
	i.mutex.Unlock()
	return nil
}

// end is applied as effect, when the instance has reached a terminal status.
func (i *Instance) end(status engine.InstanceStatus) {
	for _, h := range i.handles {
		h.release()
	}
	clear(i.handles)

	close(i.done)

	i.env.Metrics.InstancesEnded.WithLabelValues(status.String()).Inc()
	i.logger.Debug("process instance ended", "status", status)

	if i.env.OnEnd != nil {
		i.env.OnEnd(i)
	}
}
