package model

// Element is a node of a [Model]. Elements must not be modified.
type Element struct {
	Id         string
	Name       string
	Type       ElementType
	Properties Properties
	Index      int // position within the definition, -1 for the process

	Parent   *Element
	Children []*Element

	AttachedTo *Element   // boundary events only
	Boundaries []*Element // boundary events, attached to a task

	Incoming []*SequenceFlow
	Outgoing []*SequenceFlow
}

// AllElements returns the element and all its descendants, breadth first.
func (e *Element) AllElements() []*Element {
	all := []*Element{e}

	i := 0
	for i < len(all) {
		all = append(all, all[i].Children...)
		i++
	}

	return all
}

func (e *Element) ChildrenByType(elementType ElementType) []*Element {
	var elements []*Element
	for _, child := range e.Children {
		if child.Type == elementType {
			elements = append(elements, child)
		}
	}
	return elements
}

// BoundariesByType returns the attached boundary events of a type in declaration order.
func (e *Element) BoundariesByType(elementType ElementType) []*Element {
	var elements []*Element
	for _, boundary := range e.Boundaries {
		if boundary.Type == elementType {
			elements = append(elements, boundary)
		}
	}
	return elements
}

// IsJoin determines if the element is a gateway, which synchronizes multiple incoming flows.
func (e *Element) IsJoin() bool {
	return (e.Type == ElementParallelGateway || e.Type == ElementInclusiveGateway) && len(e.Incoming) > 1
}

func (e *Element) String() string {
	return e.Id
}

type SequenceFlow struct {
	Id        string
	Name      string
	Condition string
	IsDefault bool
	Index     int

	Source *Element
	Target *Element
}
