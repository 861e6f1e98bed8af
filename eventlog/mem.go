package eventlog

import (
	"context"
	"slices"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
)

// NewMemStore creates an in-memory store. Events of a process instance are kept in an arena with
// an index per log and incrementally maintained views.
func NewMemStore(customizers ...func(*Options)) (*MemStore, error) {
	options, err := newOptions(customizers)
	if err != nil {
		return nil, err
	}

	ids, err := newIdGenerator(options.NodeId)
	if err != nil {
		return nil, err
	}

	return &MemStore{
		arenas: make(map[string]*arena),
		ids:    ids,
		logger: options.Logger,
	}, nil
}

type MemStore struct {
	mutex  sync.Mutex // guards arenas
	arenas map[string]*arena

	ids    *snowflake.Node
	logger hclog.Logger
}

type arena struct {
	mutex  sync.RWMutex
	events []Event
	index  map[Key][]int // positions of a log's events
	views  map[Key]*View
}

func (s *MemStore) Append(_ context.Context, events ...Event) ([]Event, error) {
	prepared, err := prepare(events)
	if err != nil || len(prepared) == 0 {
		return nil, err
	}

	var instanceIds []string
	for _, e := range prepared {
		if !slices.Contains(instanceIds, e.ProcessInstanceId) {
			instanceIds = append(instanceIds, e.ProcessInstanceId)
		}
	}

	// lock in a stable order
	slices.Sort(instanceIds)

	arenas := make(map[string]*arena, len(instanceIds))
	for _, instanceId := range instanceIds {
		a := s.arena(instanceId, true)
		a.mutex.Lock()
		defer a.mutex.Unlock()

		arenas[instanceId] = a
	}

	for i, e := range prepared {
		a := arenas[e.ProcessInstanceId]

		nextId(s.ids, &e)

		key := e.Key()

		positions := a.index[key]
		if len(positions) == 0 {
			e.Sequence = 1
		} else {
			e.Sequence = a.events[positions[len(positions)-1]].Sequence + 1
		}

		a.index[key] = append(positions, len(a.events))
		a.events = append(a.events, e)

		view, ok := a.views[key]
		if !ok {
			view = NewView(key.ThreadId)
			a.views[key] = view
		}
		view.Apply(e)

		prepared[i] = e
	}

	return prepared, nil
}

func (s *MemStore) Query(_ context.Context, criteria Criteria) ([]Event, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}

	a := s.arena(criteria.ProcessInstanceId, false)
	if a == nil {
		return []Event{}, nil
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	results := make([]Event, 0)
	if criteria.ThreadId != "" && criteria.ElementId != "" {
		key := Key{ProcessInstanceId: criteria.ProcessInstanceId, ElementId: criteria.ElementId, ThreadId: criteria.ThreadId}
		for _, position := range a.index[key] {
			if e := a.events[position]; criteria.matches(e) {
				results = append(results, e)
			}
		}
		return results, nil
	}

	for _, e := range a.events {
		if criteria.matches(e) {
			results = append(results, e)
		}
	}
	return results, nil
}

func (s *MemStore) Clear(_ context.Context, scope Scope) error {
	if err := validateScope(scope); err != nil {
		return err
	}

	if scope.ElementId == "" {
		s.mutex.Lock()
		delete(s.arenas, scope.ProcessInstanceId)
		s.mutex.Unlock()
		return nil
	}

	a := s.arena(scope.ProcessInstanceId, false)
	if a == nil {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	events := make([]Event, 0, len(a.events))
	for _, e := range a.events {
		if !scope.contains(e.Key()) {
			events = append(events, e)
		}
	}

	a.events = events
	a.index = make(map[Key][]int)
	for i, e := range events {
		key := e.Key()
		a.index[key] = append(a.index[key], i)
	}
	for key := range a.views {
		if scope.contains(key) {
			delete(a.views, key)
		}
	}

	s.logger.Debug("cleared event log", "processInstanceId", scope.ProcessInstanceId, "elementId", scope.ElementId)
	return nil
}

func (s *MemStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.arenas = make(map[string]*arena)
	return nil
}

// Snapshot returns the incrementally maintained view of a log.
func (s *MemStore) Snapshot(_ context.Context, key Key) (Snapshot, error) {
	a := s.arena(key.ProcessInstanceId, false)
	if a == nil {
		return NewView(key.ThreadId).Snapshot(), nil
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	view, ok := a.views[key]
	if !ok {
		return NewView(key.ThreadId).Snapshot(), nil
	}
	return view.Snapshot(), nil
}

func (s *MemStore) arena(instanceId string, create bool) *arena {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	a, ok := s.arenas[instanceId]
	if !ok && create {
		a = &arena{
			index: make(map[Key][]int),
			views: make(map[Key]*View),
		}
		s.arenas[instanceId] = a
	}
	return a
}
