package internal

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dop251/goja"
	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
)

// Process is a validated, executable process. It is shared by all instances and must not be modified.
type Process struct {
	engine.Process

	Model *model.Model
	Start *model.Element // process level start event

	conditions map[string]*goja.Program    // compiled conditions by sequence flow ID
	reachable  map[*model.Element]elements // elements, reachable from an element

	// elements, reachable from an element without passing an inclusive join, by join
	reachableBefore map[*model.Element]map[*model.Element]elements
}

type elements map[*model.Element]struct{}

// NewProcess validates a model and compiles it into an executable process.
//
// An error of type [engine.ErrorDefinitionInvalid] is returned with a cause per problem.
// If the graph is valid, SLA deadlines are validated, which may result in an error of type [engine.ErrorInvalidSLAOrdering].
func NewProcess(m *model.Model, createdAt time.Time) (*Process, error) {
	g := graph{model: m}

	causes := g.validate()
	if len(causes) != 0 {
		return nil, engine.Error{
			Type:   engine.ErrorDefinitionInvalid,
			Title:  "failed to create process",
			Detail: fmt.Sprintf("process %s:%s is invalid", m.Id(), m.Version()),
			Causes: causes,
		}
	}

	for _, element := range m.Elements() {
		if err := ValidateSLA(element.Properties.SLA); err != nil {
			e := err.(engine.Error)
			e.Detail = fmt.Sprintf("element %s: %s", element.Id, e.Detail)
			e.Causes = []engine.ErrorCause{{
				Pointer: elementPointer(element) + "/properties/sla",
				Type:    "sla",
				Detail:  e.Detail,
			}}
			return nil, e
		}
	}

	conditions := make(map[string]*goja.Program)
	for _, sequenceFlow := range m.SequenceFlows() {
		if sequenceFlow.Condition == "" {
			continue
		}
		program, err := compileCondition(sequenceFlow.Id, sequenceFlow.Condition)
		if err != nil {
			return nil, engine.Error{Type: engine.ErrorBug, Title: "failed to create process", Detail: err.Error()}
		}
		conditions[sequenceFlow.Id] = program
	}

	reachable := make(map[*model.Element]elements, len(m.Elements()))
	for _, element := range m.Elements() {
		reachable[element] = g.reachableFrom(element, nil)
	}

	reachableBefore := make(map[*model.Element]map[*model.Element]elements)
	for _, join := range m.Elements() {
		if join.Type != model.ElementInclusiveGateway || !join.IsJoin() || join.Properties.FirstWins {
			continue
		}

		byElement := make(map[*model.Element]elements, len(m.Elements()))
		for _, element := range m.Elements() {
			if element.Parent == join.Parent {
				byElement[element] = g.reachableFrom(element, join)
			}
		}
		reachableBefore[join] = byElement
	}

	return &Process{
		Process: engine.Process{
			Id:         m.Id(),
			Version:    m.Version(),
			CreatedAt:  createdAt,
			Definition: m.Definition(),
		},

		Model: m,
		Start: m.Process().ChildrenByType(model.ElementNoneStartEvent)[0],

		conditions:      conditions,
		reachable:       reachable,
		reachableBefore: reachableBefore,
	}, nil
}

// canReach determines if target is reachable from an element. An element reaches itself.
func (p *Process) canReach(from *model.Element, target *model.Element) bool {
	if from == target {
		return true
	}
	_, ok := p.reachable[from][target]
	return ok
}

// canReachBefore determines if target is reachable from an element, without passing the given inclusive join.
func (p *Process) canReachBefore(from *model.Element, target *model.Element, join *model.Element) bool {
	if from == target {
		return true
	}
	_, ok := p.reachableBefore[join][from][target]
	return ok
}

type graph struct {
	model *model.Model
}

// reachableFrom returns all elements, reachable via sequence flows and boundary events.
// If stop is not nil, the search does not continue beyond it.
func (g graph) reachableFrom(start *model.Element, stop *model.Element) elements {
	visited := make(elements)

	queue := []*model.Element{start}
	for len(queue) != 0 {
		element := queue[0]
		queue = queue[1:]

		if element == stop && element != start {
			continue
		}

		for _, sequenceFlow := range element.Outgoing {
			if _, ok := visited[sequenceFlow.Target]; !ok {
				visited[sequenceFlow.Target] = struct{}{}
				queue = append(queue, sequenceFlow.Target)
			}
		}
		for _, boundary := range element.Boundaries {
			if _, ok := visited[boundary]; !ok {
				visited[boundary] = struct{}{}
				queue = append(queue, boundary)
			}
		}
	}

	return visited
}

func (g graph) validate() []engine.ErrorCause {
	var causes []engine.ErrorCause

	addCause := func(pointer string, causeType string, format string, args ...any) {
		causes = append(causes, engine.ErrorCause{
			Pointer: pointer,
			Type:    causeType,
			Detail:  fmt.Sprintf(format, args...),
		})
	}

	process := g.model.Process()

	startEvents := process.ChildrenByType(model.ElementNoneStartEvent)
	switch {
	case len(startEvents) == 0:
		addCause("/elements", "process", "process %s has no start event", process.Id)
	case len(startEvents) > 1:
		for _, startEvent := range startEvents[1:] {
			addCause(elementPointer(startEvent), "process", "process %s has multiple start events", process.Id)
		}
	}

	for _, element := range g.model.Elements() {
		pointer := elementPointer(element)

		switch {
		case element.Type.IsBoundaryEvent():
			if element.AttachedTo == nil {
				addCause(pointer+"/attachedTo", "boundary_event", "boundary event %s is not attached", element.Id)
			} else if !element.AttachedTo.Type.IsTask() {
				addCause(pointer+"/attachedTo", "boundary_event", "boundary event %s is attached to %s, which is no task", element.Id, element.AttachedTo.Id)
			} else if element.AttachedTo.Parent != element.Parent {
				addCause(pointer+"/attachedTo", "boundary_event", "boundary event %s is attached to %s of another scope", element.Id, element.AttachedTo.Id)
			}
			if len(element.Incoming) != 0 {
				addCause(pointer, "boundary_event", "boundary event %s must not have incoming sequence flows", element.Id)
			}
			if len(element.Outgoing) == 0 {
				addCause(pointer, "boundary_event", "boundary event %s has no outgoing sequence flow", element.Id)
			}
			if element.Type == model.ElementTimerBoundaryEvent {
				causes = append(causes, g.validateTimer(element)...)
			}
			continue
		case element.AttachedTo != nil:
			addCause(pointer+"/attachedTo", "element", "element %s of type %s cannot be attached", element.Id, element.Type)
		}

		switch element.Type {
		case model.ElementEventSubProcess:
			if element.Parent.Type != model.ElementProcess {
				addCause(pointer+"/parent", "event_sub_process", "event sub-process %s must be defined at process level", element.Id)
			}
			if n := len(element.ChildrenByType(model.ElementNoneStartEvent)); n != 1 {
				addCause(pointer, "event_sub_process", "event sub-process %s must have exactly one start event, but has %d", element.Id, n)
			}
			if len(element.Incoming) != 0 || len(element.Outgoing) != 0 {
				addCause(pointer, "event_sub_process", "event sub-process %s must not be connected by sequence flows", element.Id)
			}
		case model.ElementNoneStartEvent:
			if len(element.Incoming) != 0 {
				addCause(pointer, "start_event", "start event %s must not have incoming sequence flows", element.Id)
			}
			if len(element.Outgoing) == 0 {
				addCause(pointer, "start_event", "start event %s has no outgoing sequence flow", element.Id)
			}
		case model.ElementNoneEndEvent, model.ElementErrorEndEvent:
			if len(element.Outgoing) != 0 {
				addCause(pointer, "end_event", "end event %s must not have outgoing sequence flows", element.Id)
			}
		case model.ElementParallelGateway, model.ElementInclusiveGateway, model.ElementExclusiveGateway:
			if len(element.Outgoing) == 0 {
				addCause(pointer, "gateway", "gateway %s has no outgoing sequence flow", element.Id)
			}
			if element.Type != model.ElementExclusiveGateway && len(element.Incoming) > 1 && len(element.Outgoing) > 1 {
				addCause(pointer, "gateway", "gateway %s is a malformed join: it must not join and fork at once", element.Id)
			}
			if element.Properties.FirstWins && (element.Type != model.ElementInclusiveGateway || len(element.Incoming) < 2) {
				addCause(pointer+"/properties/firstWins", "gateway", "first wins is only applicable to joining inclusive gateways, but %s is not", element.Id)
			}

			var defaults int
			for _, sequenceFlow := range element.Outgoing {
				if sequenceFlow.IsDefault {
					defaults++
				}
			}
			if defaults > 1 {
				addCause(pointer, "gateway", "gateway %s has multiple default sequence flows", element.Id)
			}
		default:
			if element.Type.IsTask() && len(element.Outgoing) == 0 {
				addCause(pointer, "task", "task %s has no outgoing sequence flow", element.Id)
			}
		}
	}

	for _, sequenceFlow := range g.model.SequenceFlows() {
		pointer := sequenceFlowPointer(sequenceFlow)

		if sequenceFlow.Source.Parent != sequenceFlow.Target.Parent {
			addCause(pointer, "sequence_flow", "sequence flow %s crosses the boundary of an event sub-process", sequenceFlow.Id)
		}
		if sequenceFlow.IsDefault && !sequenceFlow.Source.Type.IsGateway() {
			addCause(pointer+"/isDefault", "sequence_flow", "sequence flow %s is a default flow, but its source is no gateway", sequenceFlow.Id)
		}
		if sequenceFlow.IsDefault && sequenceFlow.Condition != "" {
			addCause(pointer+"/condition", "sequence_flow", "default sequence flow %s must not have a condition", sequenceFlow.Id)
		}
		if sequenceFlow.Condition != "" {
			if _, err := goja.Compile(sequenceFlow.Id, sequenceFlow.Condition, true); err != nil {
				addCause(pointer+"/condition", "sequence_flow", "sequence flow %s has an invalid condition: %v", sequenceFlow.Id, err)
			}
		}
	}

	if len(causes) != 0 || len(startEvents) != 1 {
		return causes
	}

	causes = append(causes, g.validateReachability(startEvents[0])...)
	for _, eventSubProcess := range process.ChildrenByType(model.ElementEventSubProcess) {
		if startEvents := eventSubProcess.ChildrenByType(model.ElementNoneStartEvent); len(startEvents) == 1 {
			causes = append(causes, g.validateReachability(startEvents[0])...)
		}
	}

	return causes
}

// validateReachability reports end events and join flows of a scope, which can never be reached from its start event.
func (g graph) validateReachability(start *model.Element) []engine.ErrorCause {
	var causes []engine.ErrorCause

	reachable := g.reachableFrom(start, nil)
	reachable[start] = struct{}{}

	for _, element := range start.Parent.Children {
		if element.Type == model.ElementEventSubProcess {
			continue
		}

		if _, ok := reachable[element]; ok {
			if !element.IsJoin() {
				continue
			}

			for _, sequenceFlow := range element.Incoming {
				if _, ok := reachable[sequenceFlow.Source]; !ok {
					causes = append(causes, engine.ErrorCause{
						Pointer: sequenceFlowPointer(sequenceFlow),
						Type:    "join",
						Detail:  fmt.Sprintf("incoming sequence flow %s of join %s can never be reached", sequenceFlow.Id, element.Id),
					})
				}
			}
			continue
		}

		switch element.Type {
		case model.ElementNoneEndEvent, model.ElementErrorEndEvent:
			causes = append(causes, engine.ErrorCause{
				Pointer: elementPointer(element),
				Type:    "end_event",
				Detail:  fmt.Sprintf("end event %s is unreachable from start event %s", element.Id, start.Id),
			})
		}
	}

	return causes
}

func (g graph) validateTimer(element *model.Element) []engine.ErrorCause {
	pointer := elementPointer(element) + "/properties/timer"

	timer := element.Properties.Timer
	if timer == nil || timer.IsZero() {
		return []engine.ErrorCause{{
			Pointer: pointer,
			Type:    "timer",
			Detail:  fmt.Sprintf("timer boundary event %s must specify a time, time cycle or time duration", element.Id),
		}}
	}

	if timer.TimeCycle != "" && !gronx.IsValid(timer.TimeCycle) {
		return []engine.ErrorCause{{
			Pointer: pointer + "/timeCycle",
			Type:    "timer",
			Detail:  fmt.Sprintf("timer boundary event %s has an invalid CRON expression %s", element.Id, timer.TimeCycle),
		}}
	}
	if _, err := model.NewISO8601Duration(timer.TimeDuration.String()); err != nil {
		return []engine.ErrorCause{{
			Pointer: pointer + "/timeDuration",
			Type:    "timer",
			Detail:  fmt.Sprintf("timer boundary event %s: %v", element.Id, err),
		}}
	}

	return nil
}
