package internal

import (
	"fmt"
	"slices"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/model"
)

// maxTraversals limits the number of elements, a single step can enter.
const maxTraversals = 10_000

// step is an atomic change of a process instance. It modifies a cloned state, buffers events and collects
// effects, which are applied after the events have been appended.
type step struct {
	instance *Instance
	state    *state
	now      time.Time

	sync bool // Determines if the step is executed synchronously on behalf of a caller.

	events       []eventlog.Event
	effects      []func()
	correlations map[string]string // correlation ID -> task run ID, registered on commit

	traversals int
}

func (st *step) effect(effect func()) {
	st.effects = append(st.effects, effect)
}

// register registers the correlation ID of a task run. The registration takes place after the events have
// been appended, but before the new state is visible.
func (st *step) register(run *taskRun) {
	if st.correlations == nil {
		st.correlations = make(map[string]string)
	}
	st.correlations[run.CorrelationId] = run.Id
}

func (st *step) applyEffects() {
	for _, effect := range st.effects {
		effect()
	}
}

func (st *step) newToken(recovery bool) *token {
	st.state.nextToken++

	t := &token{id: st.state.nextToken, recovery: recovery}
	st.state.tokens[t.id] = t
	return t
}

func (st *step) dropToken(t *token) {
	delete(st.state.tokens, t.id)
}

// enter moves a token to an element. via is nil for start events.
func (st *step) enter(t *token, element *model.Element, via *model.SequenceFlow) error {
	st.traversals++
	if st.traversals > maxTraversals {
		return engine.Error{
			Type:   engine.ErrorBug,
			Title:  "failed to advance process instance",
			Detail: fmt.Sprintf("exceeded %d traversals within a single step at element %s", maxTraversals, element.Id),
		}
	}

	if via != nil {
		st.state.traversed[via.Id] = true
	}

	if st.state.terminating || (st.state.interrupted && !t.recovery) {
		st.dropToken(t)
		return nil
	}

	t.elementId = element.Id
	t.runId = ""

	switch element.Type {
	case model.ElementNoneStartEvent:
		return st.leave(t, element)
	case model.ElementNoneEndEvent:
		st.dropToken(t)
		return nil
	case model.ElementErrorEndEvent:
		st.dropToken(t)
		return st.raise(engine.Failure{
			ElementId: element.Id,
			Type:      engine.ErrorTaskFailure,
			ErrorCode: element.Properties.ErrorCode,
			Message:   fmt.Sprintf("error end event %s has been reached", element.Id),
		}, t.recovery)
	case model.ElementExclusiveGateway:
		sequenceFlow, err := st.evaluateExclusive(element)
		if err != nil {
			return st.gatewayError(t, element, err)
		}
		return st.enter(t, sequenceFlow.Target, sequenceFlow)
	case model.ElementParallelGateway:
		if element.IsJoin() {
			return st.joinParallel(t, element, via)
		}
		return st.leave(t, element)
	case model.ElementInclusiveGateway:
		if element.IsJoin() {
			return st.joinInclusive(t, element, via)
		}
		sequenceFlows, err := st.evaluateInclusive(element)
		if err != nil {
			return st.gatewayError(t, element, err)
		}
		return st.fork(t, sequenceFlows)
	default:
		if element.Type.IsTask() {
			return st.createRun(t, element)
		}
		return engine.Error{
			Type:   engine.ErrorBug,
			Title:  "failed to advance process instance",
			Detail: fmt.Sprintf("element %s of type %s cannot be entered", element.Id, element.Type),
		}
	}
}

// leave takes all outgoing sequence flows of an element.
func (st *step) leave(t *token, element *model.Element) error {
	if len(element.Outgoing) == 0 {
		st.dropToken(t)
		return nil
	}
	return st.fork(t, element.Outgoing)
}

// fork takes the given sequence flows. The first flow reuses the token, every other flow gets a new one.
func (st *step) fork(t *token, sequenceFlows []*model.SequenceFlow) error {
	for i, sequenceFlow := range sequenceFlows {
		next := t
		if i != 0 {
			next = st.newToken(t.recovery)
		}
		if err := st.enter(next, sequenceFlow.Target, sequenceFlow); err != nil {
			return err
		}
	}
	return nil
}

func (st *step) evaluate(sequenceFlow *model.SequenceFlow) (bool, error) {
	if sequenceFlow.Condition == "" {
		return true, nil
	}

	ok, err := evaluateCondition(st.instance.process.conditions[sequenceFlow.Id], st.state.variables)
	if err != nil {
		return false, fmt.Errorf("sequence flow %s: %v", sequenceFlow.Id, err)
	}
	return ok, nil
}

func (st *step) evaluateExclusive(element *model.Element) (*model.SequenceFlow, error) {
	var defaultFlow *model.SequenceFlow
	for _, sequenceFlow := range element.Outgoing {
		if sequenceFlow.IsDefault {
			defaultFlow = sequenceFlow
			continue
		}

		ok, err := st.evaluate(sequenceFlow)
		if err != nil {
			return nil, err
		}
		if ok {
			return sequenceFlow, nil
		}
	}

	if defaultFlow != nil {
		return defaultFlow, nil
	}
	return nil, fmt.Errorf("no condition of exclusive gateway %s is satisfied and no default flow exists", element.Id)
}

func (st *step) evaluateInclusive(element *model.Element) ([]*model.SequenceFlow, error) {
	var (
		defaultFlow   *model.SequenceFlow
		sequenceFlows []*model.SequenceFlow
	)

	for _, sequenceFlow := range element.Outgoing {
		if sequenceFlow.IsDefault {
			defaultFlow = sequenceFlow
			continue
		}

		ok, err := st.evaluate(sequenceFlow)
		if err != nil {
			return nil, err
		}
		if ok {
			sequenceFlows = append(sequenceFlows, sequenceFlow)
		}
	}

	if len(sequenceFlows) != 0 {
		return sequenceFlows, nil
	}
	if defaultFlow != nil {
		return []*model.SequenceFlow{defaultFlow}, nil
	}
	return nil, fmt.Errorf("no condition of inclusive gateway %s is satisfied and no default flow exists", element.Id)
}

// gatewayError handles a gateway, that could not be passed. Synchronous steps fail with an error of type
// [engine.ErrorNoViableFlow], asynchronous steps fail the process instance.
func (st *step) gatewayError(t *token, element *model.Element, err error) error {
	if st.sync {
		return engine.Error{
			Type:   engine.ErrorNoViableFlow,
			Title:  "failed to pass gateway",
			Detail: err.Error(),
		}
	}

	st.instance.logger.Warn("no viable flow", "element", element.Id, "err", err)

	st.dropToken(t)
	st.failInstance(engine.Failure{
		ElementId: element.Id,
		Type:      engine.ErrorNoViableFlow,
		Message:   err.Error(),
	})
	return nil
}

func (st *step) joinParallel(t *token, element *model.Element, via *model.SequenceFlow) error {
	st.dropToken(t)

	arrivals := st.arrive(element, via)
	for _, sequenceFlow := range element.Incoming {
		if arrivals[sequenceFlow.Id] == 0 {
			return nil
		}
	}

	for _, sequenceFlow := range element.Incoming {
		arrivals[sequenceFlow.Id]--
	}
	return st.leave(st.newToken(t.recovery), element)
}

func (st *step) joinInclusive(t *token, element *model.Element, via *model.SequenceFlow) error {
	st.dropToken(t)

	if !element.Properties.FirstWins {
		st.arrive(element, via) // fired by settle
		return nil
	}

	if st.state.fired[element.Id] {
		return nil // late arrival
	}
	st.state.fired[element.Id] = true

	// cancel all siblings, which could still reach the join
	for _, run := range st.state.runs {
		if run.Status.IsTerminal() {
			continue
		}

		sibling := st.state.tokenOf(run)
		if sibling == nil {
			continue
		}
		if !st.instance.process.canReach(st.instance.process.Model.ElementById(run.ElementId), element) {
			continue
		}

		st.dropToken(sibling)
		run.token = 0
		st.cancelInternally(run, fmt.Sprintf("first wins join %s has fired", element.Id), causeInterrupt)
	}

	return st.leave(st.newToken(t.recovery), element)
}

func (st *step) arrive(element *model.Element, via *model.SequenceFlow) map[string]int {
	arrivals, ok := st.state.arrivals[element.Id]
	if !ok {
		arrivals = make(map[string]int, len(element.Incoming))
		st.state.arrivals[element.Id] = arrivals
	}
	if via != nil {
		arrivals[via.Id]++
	}
	return arrivals
}

// settle fires inclusive joins, starts pending task runs and checks if the process instance has ended, until
// no further progress is possible.
func (st *step) settle() error {
	for {
		joined, err := st.fireInclusiveJoins()
		if err != nil {
			return err
		}

		activated, err := st.activatePendingRuns()
		if err != nil {
			return err
		}

		if !joined && !activated {
			break
		}
	}

	st.checkTermination()
	return nil
}

func (st *step) fireInclusiveJoins() (bool, error) {
	process := st.instance.process

	joinIds := make([]string, 0, len(st.state.arrivals))
	for joinId, arrivals := range st.state.arrivals {
		for _, n := range arrivals {
			if n > 0 {
				joinIds = append(joinIds, joinId)
				break
			}
		}
	}
	slices.Sort(joinIds)

	for _, joinId := range joinIds {
		element := process.Model.ElementById(joinId)
		if element.Type != model.ElementInclusiveGateway || element.Properties.FirstWins {
			continue
		}
		if !st.inclusiveJoinReady(element) {
			continue
		}

		arrivals := st.state.arrivals[joinId]
		for _, sequenceFlow := range element.Incoming {
			if arrivals[sequenceFlow.Id] > 0 {
				arrivals[sequenceFlow.Id]--
			}
		}

		// tokens within an event sub-process always belong to a recovery
		recovery := element.Parent.Type == model.ElementEventSubProcess
		if err := st.leave(st.newToken(recovery), element); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// inclusiveJoinReady determines if every incoming flow of an inclusive join has an arrival or can no longer
// be reached from any live position - a token or another join, holding arrivals.
func (st *step) inclusiveJoinReady(element *model.Element) bool {
	process := st.instance.process
	arrivals := st.state.arrivals[element.Id]

	var positions []*model.Element
	for _, t := range st.state.tokens {
		positions = append(positions, process.Model.ElementById(t.elementId))
	}
	for joinId, joinArrivals := range st.state.arrivals {
		if joinId == element.Id {
			continue
		}
		for _, n := range joinArrivals {
			if n > 0 {
				positions = append(positions, process.Model.ElementById(joinId))
				break
			}
		}
	}

	for _, sequenceFlow := range element.Incoming {
		if arrivals[sequenceFlow.Id] > 0 {
			continue
		}
		for _, position := range positions {
			if process.canReachBefore(position, sequenceFlow.Source, element) {
				return false
			}
		}
	}
	return true
}

// checkTermination ends the process instance, when no token is left and all task runs have ended.
func (st *step) checkTermination() {
	s := st.state
	if s.status.IsTerminal() || len(s.tokens) != 0 {
		return
	}
	for _, run := range s.runs {
		if !run.Status.IsTerminal() {
			return
		}
	}

	switch {
	case s.failure != nil:
		s.status = engine.InstanceFailed
	case s.cancelled || s.cancelledTokens:
		s.status = engine.InstanceCancelled
	default:
		s.status = engine.InstanceCompleted
	}

	endedAt := st.now
	s.endedAt = &endedAt

	status := s.status
	st.effect(func() {
		st.instance.end(status)
	})
}
