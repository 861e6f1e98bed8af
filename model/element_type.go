package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ElementType describes the different element types - tasks, gateways and events.
type ElementType int

const (
	ElementAgentTask ElementType = iota + 1
	ElementErrorBoundaryEvent
	ElementErrorEndEvent
	ElementEscalationBoundaryEvent
	ElementEventSubProcess
	ElementExclusiveGateway
	ElementInclusiveGateway
	ElementNoneEndEvent
	ElementNoneStartEvent
	ElementParallelGateway
	ElementProcess
	ElementServiceTask
	ElementTimerBoundaryEvent
	ElementUserTask
)

func MapElementType(s string) ElementType {
	switch s {
	case "AGENT_TASK":
		return ElementAgentTask
	case "ERROR_BOUNDARY_EVENT":
		return ElementErrorBoundaryEvent
	case "ERROR_END_EVENT":
		return ElementErrorEndEvent
	case "ESCALATION_BOUNDARY_EVENT":
		return ElementEscalationBoundaryEvent
	case "EVENT_SUB_PROCESS":
		return ElementEventSubProcess
	case "EXCLUSIVE_GATEWAY":
		return ElementExclusiveGateway
	case "INCLUSIVE_GATEWAY":
		return ElementInclusiveGateway
	case "NONE_END_EVENT":
		return ElementNoneEndEvent
	case "NONE_START_EVENT":
		return ElementNoneStartEvent
	case "PARALLEL_GATEWAY":
		return ElementParallelGateway
	case "PROCESS":
		return ElementProcess
	case "SERVICE_TASK":
		return ElementServiceTask
	case "TIMER_BOUNDARY_EVENT":
		return ElementTimerBoundaryEvent
	case "USER_TASK":
		return ElementUserTask
	default:
		return 0
	}
}

// IsBoundaryEvent determines if the type is attached to a task.
func (v ElementType) IsBoundaryEvent() bool {
	switch v {
	case ElementErrorBoundaryEvent, ElementEscalationBoundaryEvent, ElementTimerBoundaryEvent:
		return true
	default:
		return false
	}
}

func (v ElementType) IsGateway() bool {
	switch v {
	case ElementExclusiveGateway, ElementInclusiveGateway, ElementParallelGateway:
		return true
	default:
		return false
	}
}

// IsTask determines if elements of the type are executed as a task run.
func (v ElementType) IsTask() bool {
	switch v {
	case ElementAgentTask, ElementServiceTask, ElementUserTask:
		return true
	default:
		return false
	}
}

func (v ElementType) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v ElementType) MarshalYAML() (any, error) {
	return v.String(), nil
}

func (v ElementType) String() string {
	switch v {
	case ElementAgentTask:
		return "AGENT_TASK"
	case ElementErrorBoundaryEvent:
		return "ERROR_BOUNDARY_EVENT"
	case ElementErrorEndEvent:
		return "ERROR_END_EVENT"
	case ElementEscalationBoundaryEvent:
		return "ESCALATION_BOUNDARY_EVENT"
	case ElementEventSubProcess:
		return "EVENT_SUB_PROCESS"
	case ElementExclusiveGateway:
		return "EXCLUSIVE_GATEWAY"
	case ElementInclusiveGateway:
		return "INCLUSIVE_GATEWAY"
	case ElementNoneEndEvent:
		return "NONE_END_EVENT"
	case ElementNoneStartEvent:
		return "NONE_START_EVENT"
	case ElementParallelGateway:
		return "PARALLEL_GATEWAY"
	case ElementProcess:
		return "PROCESS"
	case ElementServiceTask:
		return "SERVICE_TASK"
	case ElementTimerBoundaryEvent:
		return "TIMER_BOUNDARY_EVENT"
	case ElementUserTask:
		return "USER_TASK"
	default:
		return ""
	}
}

func (v *ElementType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid element type data %s", s)
	}
	*v = MapElementType(s[1 : len(s)-1])
	if *v == 0 {
		return fmt.Errorf("invalid element type data %s", s)
	}
	return nil
}

func (v *ElementType) UnmarshalYAML(node *yaml.Node) error {
	*v = MapElementType(node.Value)
	if *v == 0 {
		return fmt.Errorf("line %d: invalid element type %s", node.Line, node.Value)
	}
	return nil
}
