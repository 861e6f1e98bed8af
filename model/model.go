package model

import (
	"errors"
	"fmt"
)

// New compiles a definition into an immutable model. It fails, when the definition cannot be represented
// as a graph - e.g. because of duplicate IDs or references to unknown elements. Semantic checks, like
// reachability, are performed by the engine.
func New(definition Definition) (*Model, error) {
	definition = definition.clone()

	var errs []error

	process := &Element{Id: definition.Id, Type: ElementProcess, Index: -1}

	elements := make([]*Element, len(definition.Elements))
	elementById := make(map[string]*Element, len(definition.Elements))
	for i, ed := range definition.Elements {
		if ed.Id == "" {
			errs = append(errs, fmt.Errorf("element #%d has no ID", i))
			continue
		}
		if _, ok := elementById[ed.Id]; ok || ed.Id == definition.Id {
			errs = append(errs, fmt.Errorf("element #%d has a duplicate ID %s", i, ed.Id))
			continue
		}

		element := &Element{
			Id:         ed.Id,
			Name:       ed.Name,
			Type:       ed.Type,
			Properties: ed.Properties,
			Index:      i,
		}

		elements[i] = element
		elementById[ed.Id] = element
	}

	for i, ed := range definition.Elements {
		element := elements[i]
		if element == nil {
			continue
		}

		parent := process
		if ed.Parent != "" {
			if p, ok := elementById[ed.Parent]; !ok {
				errs = append(errs, fmt.Errorf("element %s has an unknown parent %s", ed.Id, ed.Parent))
			} else if p.Type != ElementEventSubProcess {
				errs = append(errs, fmt.Errorf("element %s has parent %s, which is no event sub-process", ed.Id, ed.Parent))
			} else {
				parent = p
			}
		}

		element.Parent = parent
		parent.Children = append(parent.Children, element)

		if ed.AttachedTo != "" {
			if attachedTo, ok := elementById[ed.AttachedTo]; !ok {
				errs = append(errs, fmt.Errorf("element %s is attached to an unknown element %s", ed.Id, ed.AttachedTo))
			} else {
				element.AttachedTo = attachedTo
				attachedTo.Boundaries = append(attachedTo.Boundaries, element)
			}
		}
	}

	sequenceFlows := make([]*SequenceFlow, 0, len(definition.SequenceFlows))
	sequenceFlowById := make(map[string]*SequenceFlow, len(definition.SequenceFlows))
	for i, sd := range definition.SequenceFlows {
		if _, ok := sequenceFlowById[sd.Id]; ok || sd.Id == "" {
			errs = append(errs, fmt.Errorf("sequence flow #%d has an empty or duplicate ID %s", i, sd.Id))
			continue
		}

		source, ok := elementById[sd.Source]
		if !ok {
			errs = append(errs, fmt.Errorf("sequence flow %s has an unknown source %s", sd.Id, sd.Source))
		}
		target, ok := elementById[sd.Target]
		if !ok {
			errs = append(errs, fmt.Errorf("sequence flow %s has an unknown target %s", sd.Id, sd.Target))
		}
		if source == nil || target == nil {
			continue
		}

		sequenceFlow := &SequenceFlow{
			Id:        sd.Id,
			Name:      sd.Name,
			Condition: sd.Condition,
			IsDefault: sd.IsDefault,
			Source:    source,
			Target:    target,
			Index:     i,
		}

		source.Outgoing = append(source.Outgoing, sequenceFlow)
		target.Incoming = append(target.Incoming, sequenceFlow)

		sequenceFlows = append(sequenceFlows, sequenceFlow)
		sequenceFlowById[sd.Id] = sequenceFlow
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	model := Model{
		definition:       definition,
		process:          process,
		elements:         elements,
		elementById:      elementById,
		sequenceFlows:    sequenceFlows,
		sequenceFlowById: sequenceFlowById,
	}

	return &model, nil
}

// Model is the compiled, read-only graph of a [Definition].
type Model struct {
	definition Definition
	process    *Element

	elements    []*Element // in declaration order
	elementById map[string]*Element

	sequenceFlows    []*SequenceFlow
	sequenceFlowById map[string]*SequenceFlow
}

// Definition returns a copy of the definition, the model was compiled from.
func (m *Model) Definition() Definition {
	return m.definition.clone()
}

func (m *Model) Id() string {
	return m.definition.Id
}

func (m *Model) Version() string {
	return m.definition.Version
}

// Process returns the root element, whose children are the process level elements.
func (m *Model) Process() *Element {
	return m.process
}

func (m *Model) ElementById(id string) *Element {
	return m.elementById[id]
}

// Elements returns all elements in declaration order.
func (m *Model) Elements() []*Element {
	return m.elements
}

func (m *Model) SequenceFlowById(id string) *SequenceFlow {
	return m.sequenceFlowById[id]
}

func (m *Model) SequenceFlows() []*SequenceFlow {
	return m.sequenceFlows
}
