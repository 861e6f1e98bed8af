package internal

import (
	"maps"
	"time"

	"github.com/gclaussn/go-flow/engine"
)

// token marks a position within a process instance. A token at rest always waits for a task run.
type token struct {
	id        int
	elementId string
	runId     string
	recovery  bool // Determines if the token belongs to an event sub-process, triggered by a failure.
}

type cancelCause int

const (
	causeNone      cancelCause = iota
	causeInterrupt             // interrupting boundary event, first wins, recovery or failure
	causeTimeout               // SLA timeout
)

// taskRun is the state of a task run, including bookkeeping, which is not part of the public model.
type taskRun struct {
	engine.TaskRun

	token    int  // ID of the token, waiting for the run; 0, if detached
	startSeq int  // step sequence, the run was started at
	resolved bool // Determines if the run has been resolved via CompleteTask.
	userTask bool

	cause cancelCause // cause of an engine-initiated cancellation
}

type variableWrite struct {
	runId string
	seq   int
}

// state is the complete state of a process instance. It is only modified by the instance loop, on a clone.
type state struct {
	status    engine.InstanceStatus
	endedAt   *time.Time
	failure   *engine.Failure
	cancelled bool // whole instance cancel
	// Determines if a task run ended cancelled, without a modeled path to follow.
	cancelledTokens bool
	// Determines if an interrupting event sub-process has been triggered. Only recovery tokens can move on.
	interrupted bool
	// Determines if the instance is failing or cancelled. No token can move on.
	terminating bool

	tokens    map[int]*token
	nextToken int

	runs []*taskRun // in creation order

	variables map[string]any
	writes    map[string]variableWrite // last writer by variable name

	arrivals  map[string]map[string]int // arrivals by join element ID and incoming sequence flow ID
	fired     map[string]bool           // fired first wins joins
	traversed map[string]bool           // traversed sequence flows

	seq int
}

func newState(variables map[string]any) *state {
	if variables == nil {
		variables = make(map[string]any)
	}

	return &state{
		status: engine.InstanceRunning,

		tokens: make(map[int]*token),

		variables: variables,
		writes:    make(map[string]variableWrite),

		arrivals:  make(map[string]map[string]int),
		fired:     make(map[string]bool),
		traversed: make(map[string]bool),
	}
}

func (s *state) clone() *state {
	c := *s

	if s.failure != nil {
		failure := *s.failure
		c.failure = &failure
	}

	c.tokens = make(map[int]*token, len(s.tokens))
	for id, t := range s.tokens {
		tc := *t
		c.tokens[id] = &tc
	}

	c.runs = make([]*taskRun, len(s.runs))
	for i, run := range s.runs {
		rc := *run
		c.runs[i] = &rc
	}

	c.variables = maps.Clone(s.variables)
	c.writes = maps.Clone(s.writes)

	c.arrivals = make(map[string]map[string]int, len(s.arrivals))
	for joinId, arrivals := range s.arrivals {
		c.arrivals[joinId] = maps.Clone(arrivals)
	}
	c.fired = maps.Clone(s.fired)
	c.traversed = maps.Clone(s.traversed)

	return &c
}

func (s *state) run(runId string) *taskRun {
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Id == runId {
			return s.runs[i]
		}
	}
	return nil
}

// latestRun returns the latest run of an element. If threadId is not empty, it must match as well.
func (s *state) latestRun(elementId string, threadId string) *taskRun {
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if run.ElementId == elementId && (threadId == "" || run.ThreadId == threadId) {
			return run
		}
	}
	return nil
}

// occupied determines if a run of the element is active. Further runs of the element stay pending.
func (s *state) occupied(elementId string) bool {
	for _, run := range s.runs {
		if run.ElementId != elementId {
			continue
		}
		if run.Status == engine.TaskRunRunning || run.Status == engine.TaskRunCancelling {
			return true
		}
	}
	return false
}

// tokenOf returns the token, waiting for a run, or nil if the run is detached.
func (s *state) tokenOf(run *taskRun) *token {
	if run.token == 0 {
		return nil
	}
	return s.tokens[run.token]
}

func (s *state) processInstance(i *Instance) engine.ProcessInstance {
	pi := engine.ProcessInstance{
		Id:        i.id,
		ProcessId: i.process.Id,
		Version:   i.process.Version,
		CreatedAt: i.createdAt,
		EndedAt:   s.endedAt,
		Status:    s.status,
	}
	if s.failure != nil {
		failure := *s.failure
		pi.Failure = &failure
	}
	return pi
}
