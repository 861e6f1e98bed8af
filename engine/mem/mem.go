package mem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/internal"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

func New(customizers ...func(*Options)) (engine.Engine, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	logger := options.Common.Logger.Named("engine")

	store := options.Common.EventLog
	if store == nil {
		memStore, err := eventlog.NewMemStore(func(o *eventlog.Options) {
			o.Logger = logger
			o.NodeId = eventlog.NodeId(options.Common.EngineId)
		})
		if err != nil {
			return nil, err
		}
		store = memStore
	}

	metrics, err := internal.NewMetrics(options.Common.Registerer)
	if err != nil {
		return nil, err
	}

	clock := &internal.Clock{}
	feed := eventlog.NewFeed(store, options.Common.SubscriptionSize)

	e := memEngine{
		options: options,
		logger:  logger,

		feed:         feed,
		ownsStore:    options.Common.EventLog == nil,
		correlations: internal.NewCorrelations(),

		processes: newProcessRepository(),
	}

	e.env = &internal.Env{
		Clock:        clock,
		Scheduler:    internal.NewScheduler(clock, logger.Named("scheduler")),
		EventLog:     feed,
		Executors:    options.Common.Executors,
		Logger:       logger,
		Metrics:      metrics,
		Correlations: e.correlations,

		CancelGracePeriod: options.Common.CancelGracePeriod,
		DefaultRetryLimit: options.Common.DefaultRetryLimit,
		InboxSize:         options.Common.InboxSize,

		OnEnd: e.onEnd,
	}

	e.instances = newInstanceRepository(options.ArchiveSize, options.ArchiveTTL, e.onEvict)

	return &e, nil
}

func NewOptions() Options {
	return Options{
		Common: engine.Options{
			CancelGracePeriod: 30 * time.Second,
			DefaultQueryLimit: 1000,
			DefaultRetryLimit: 3,
			EngineId:          engine.DefaultEngineId,
			InboxSize:         64,
			Logger:            hclog.NewNullLogger(),
			SubscriptionSize:  1024,
		},

		ArchiveSize: 10_000,
		ArchiveTTL:  24 * time.Hour,
	}
}

type Options struct {
	Common engine.Options // Common options

	ArchiveSize int           // Maximum number of ended process instances, kept in memory.
	ArchiveTTL  time.Duration // Time, an ended process instance is kept in memory. If 0, instances are only evicted by size.
}

func (o Options) Validate() error {
	if err := o.Common.Validate(); err != nil {
		return err
	}
	if o.ArchiveSize < 1 {
		return errors.New("archive size must be greater than or equal to 1")
	}
	if o.ArchiveTTL < 0 {
		return errors.New("archive TTL must be greater than or equal to 0")
	}
	return nil
}

type memEngine struct {
	options Options
	logger  hclog.Logger

	env          *internal.Env
	feed         *eventlog.Feed
	ownsStore    bool
	correlations *internal.Correlations

	processes *processRepository
	instances *instanceRepository
}

func (e *memEngine) CancelProcessInstance(ctx context.Context, cmd engine.CancelProcessInstanceCmd) (engine.ProcessInstance, error) {
	i, err := e.instances.Select(cmd.Id)
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return i.Cancel(ctx, cmd.Reason)
}

func (e *memEngine) CancelTask(ctx context.Context, cmd engine.CancelTaskCmd) (engine.TaskRun, error) {
	i, err := e.instances.Select(cmd.ProcessInstanceId)
	if err != nil {
		return engine.TaskRun{}, err
	}
	if cmd.ElementId == "" {
		return engine.TaskRun{}, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to cancel task",
			Detail: "element ID must not be empty",
		}
	}
	if cmd.ThreadId != "" && cmd.ThreadId != internal.ThreadId(cmd.ProcessInstanceId, cmd.ElementId) {
		return engine.TaskRun{}, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  "failed to cancel task",
			Detail: fmt.Sprintf("element %s has no thread %s", cmd.ElementId, cmd.ThreadId),
		}
	}
	return i.CancelTask(ctx, cmd)
}

func (e *memEngine) ClearHistory(ctx context.Context, cmd engine.ClearHistoryCmd) error {
	if _, err := e.instances.Select(cmd.ProcessInstanceId); err != nil {
		return err
	}

	return e.feed.Clear(ctx, eventlog.Scope{
		ProcessInstanceId: cmd.ProcessInstanceId,
		ElementId:         cmd.ElementId,
	})
}

func (e *memEngine) CompleteTask(ctx context.Context, cmd engine.CompleteTaskCmd) (engine.TaskRun, error) {
	return internal.CompleteTask(ctx, e.correlations, cmd)
}

func (e *memEngine) CreateProcess(_ context.Context, cmd engine.CreateProcessCmd) (engine.Process, error) {
	process, err := e.processes.Create(cmd, e.env.Clock.Now())
	if err != nil {
		return engine.Process{}, err
	}
	return process.Process, nil
}

func (e *memEngine) GetProcessInstance(_ context.Context, cmd engine.GetProcessInstanceCmd) (engine.ProcessInstance, error) {
	i, err := e.instances.Select(cmd.Id)
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return i.ProcessInstance(), nil
}

func (e *memEngine) GetSnapshot(ctx context.Context, cmd engine.GetSnapshotCmd) (eventlog.Snapshot, error) {
	if _, err := e.instances.Select(cmd.ProcessInstanceId); err != nil {
		return eventlog.Snapshot{}, err
	}

	threadId := cmd.ThreadId
	if threadId == "" {
		threadId = internal.ThreadId(cmd.ProcessInstanceId, cmd.ElementId)
	}

	return e.feed.Snapshot(ctx, eventlog.Key{
		ProcessInstanceId: cmd.ProcessInstanceId,
		ElementId:         cmd.ElementId,
		ThreadId:          threadId,
	})
}

func (e *memEngine) GetVariables(_ context.Context, cmd engine.GetVariablesCmd) (map[string]any, error) {
	i, err := e.instances.Select(cmd.ProcessInstanceId)
	if err != nil {
		return nil, err
	}
	return i.Variables(cmd.Names), nil
}

func (e *memEngine) QueryEvents(ctx context.Context, criteria eventlog.Criteria) ([]eventlog.Event, error) {
	events, err := e.feed.Query(ctx, criteria)
	if err != nil {
		return nil, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to query events",
			Detail: err.Error(),
		}
	}
	return events, nil
}

func (e *memEngine) QueryProcessInstances(_ context.Context, criteria engine.ProcessInstanceCriteria) ([]engine.ProcessInstance, error) {
	return e.instances.QueryProcessInstances(criteria, e.options.Common.DefaultQueryLimit), nil
}

func (e *memEngine) QueryTaskRuns(_ context.Context, criteria engine.TaskRunCriteria) ([]engine.TaskRun, error) {
	return e.instances.QueryTaskRuns(criteria, e.options.Common.DefaultQueryLimit), nil
}

func (e *memEngine) SetTime(_ context.Context, cmd engine.SetTimeCmd) error {
	return e.env.Scheduler.SetTime(cmd.Time.UTC().Truncate(time.Millisecond))
}

func (e *memEngine) StartProcessInstance(ctx context.Context, cmd engine.StartProcessInstanceCmd) (engine.ProcessInstance, error) {
	process, err := e.processes.Select(cmd.ProcessId, cmd.Version)
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	i, err := internal.Start(ctx, e.env, process, uuid.NewString(), cmd.Variables)
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	e.instances.Insert(i)
	return i.ProcessInstance(), nil
}

func (e *memEngine) Subscribe(ctx context.Context, criteria eventlog.Criteria) (<-chan eventlog.Event, error) {
	s, err := e.feed.Subscribe(ctx, criteria)
	if err != nil {
		return nil, err
	}
	return s.C, nil
}

func (e *memEngine) WaitProcessInstance(ctx context.Context, cmd engine.WaitProcessInstanceCmd) (engine.ProcessInstance, error) {
	i, err := e.instances.Select(cmd.Id)
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	select {
	case <-i.Done():
		return i.ProcessInstance(), nil
	case <-ctx.Done():
		return engine.ProcessInstance{}, ctx.Err()
	}
}

func (e *memEngine) Shutdown() {
	for _, i := range e.instances.Live() {
		i.Shutdown()
	}

	if e.ownsStore {
		if err := e.feed.Close(); err != nil {
			e.logger.Error("failed to close event log", "err", err)
		}
	}
}

// onEnd moves an ended process instance into the archive.
func (e *memEngine) onEnd(i *internal.Instance) {
	e.instances.Archive(i)
}

// onEvict removes an evicted process instance: its correlations and its event log.
func (e *memEngine) onEvict(id string, _ *internal.Instance) {
	e.correlations.RemoveInstance(id)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.feed.Clear(ctx, eventlog.Scope{ProcessInstanceId: id}); err != nil {
		e.logger.Error("failed to clear event log of evicted process instance", "id", id, "err", err)
	}
}
