package internal

import (
	"slices"
	"sync"
	"time"

	"github.com/gclaussn/go-flow/model"
	"github.com/hashicorp/go-hclog"
)

// maxFiresPerSetTime stops a SetTime call from looping forever on a cycle, that is always due.
const maxFiresPerSetTime = 10_000

// NewScheduler creates a scheduler, which measures due dates with the given clock.
func NewScheduler(clock *Clock, logger hclog.Logger) *Scheduler {
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		entries: make(map[string]map[string]*timerEntry),
	}
}

// Scheduler arms timers for task runs. A timer is identified by a key, the task run ID, and a name.
//
// Every timer fires at most once: it is removed under lock before its fire function is called, which
// happens outside of the lock.
type Scheduler struct {
	clock  *Clock
	logger hclog.Logger

	mutex   sync.Mutex
	entries map[string]map[string]*timerEntry
	seq     uint64
}

type timerEntry struct {
	key  string
	name string
	due  time.Time
	seq  uint64
	fire func()

	timer *time.Timer
}

// Schedule arms a timer, which calls fire when due. An existing timer with the same key and name is replaced.
func (s *Scheduler) Schedule(key string, name string, due time.Time, fire func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if named, ok := s.entries[key]; ok {
		if existing, ok := named[name]; ok {
			existing.timer.Stop()
		}
	} else {
		s.entries[key] = make(map[string]*timerEntry)
	}

	s.seq++

	entry := &timerEntry{key: key, name: name, due: due, seq: s.seq, fire: fire}
	s.entries[key][name] = entry
	s.arm(entry)
}

// ArmSLA arms a timer per SLA deadline, relative to start. fire is called with the kind of the deadline.
//
// An error of type [engine.ErrorInvalidSLAOrdering] is returned, if the deadlines are not positive,
// not unique or not strictly increasing.
func (s *Scheduler) ArmSLA(key string, start time.Time, slas []model.SLA, fire func(model.TimerKind)) error {
	if err := ValidateSLA(slas); err != nil {
		return err
	}

	for _, sla := range slas {
		kind := sla.Kind
		s.Schedule(key, "sla:"+kind.String(), sla.Offset.Calculate(start), func() {
			fire(kind)
		})
	}
	return nil
}

// Cancel disarms all timers of a key.
func (s *Scheduler) Cancel(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, entry := range s.entries[key] {
		entry.timer.Stop()
	}
	delete(s.entries, key)
}

// CancelName disarms a single timer.
func (s *Scheduler) CancelName(key string, name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if entry, ok := s.entries[key][name]; ok {
		entry.timer.Stop()
		s.removeLocked(entry)
	}
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var n int
	for _, named := range s.entries {
		n += len(named)
	}
	return n
}

// SetTime moves the clock forward and fires all timers, which are due, in due order.
// Timers, armed by a fire function, are considered as well. Afterwards the remaining timers are re-armed.
func (s *Scheduler) SetTime(t time.Time) error {
	if err := s.clock.Set(t); err != nil {
		return err
	}

	for i := 0; i < maxFiresPerSetTime; i++ {
		entry := s.popDue()
		if entry == nil {
			break
		}

		s.logger.Debug("firing timer", "key", entry.key, "name", entry.name, "due", entry.due)
		entry.fire()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, named := range s.entries {
		for _, entry := range named {
			entry.timer.Stop()
			s.arm(entry)
		}
	}

	return nil
}

// arm starts the wall clock timer of an entry. The caller must hold the lock.
func (s *Scheduler) arm(entry *timerEntry) {
	entry.timer = time.AfterFunc(entry.due.Sub(s.clock.Now()), func() {
		s.mutex.Lock()
		if s.entries[entry.key][entry.name] != entry {
			s.mutex.Unlock()
			return // cancelled, replaced or already fired
		}
		s.removeLocked(entry)
		s.mutex.Unlock()

		entry.fire()
	})
}

// popDue removes and returns the earliest due entry or nil, if no entry is due.
func (s *Scheduler) popDue() *timerEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.clock.Now()

	var due []*timerEntry
	for _, named := range s.entries {
		for _, entry := range named {
			if !entry.due.After(now) {
				due = append(due, entry)
			}
		}
	}
	if len(due) == 0 {
		return nil
	}

	slices.SortFunc(due, func(a *timerEntry, b *timerEntry) int {
		if c := a.due.Compare(b.due); c != 0 {
			return c
		}
		return int(a.seq) - int(b.seq)
	})

	entry := due[0]
	entry.timer.Stop()
	s.removeLocked(entry)
	return entry
}

func (s *Scheduler) removeLocked(entry *timerEntry) {
	named := s.entries[entry.key]
	delete(named, entry.name)
	if len(named) == 0 {
		delete(s.entries, entry.key)
	}
}
