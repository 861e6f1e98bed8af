package model

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// ReadDefinition decodes a definition, encoded as YAML or JSON.
func ReadDefinition(r io.Reader) (Definition, error) {
	var definition Definition

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&definition); err != nil {
		if err == io.EOF {
			return Definition{}, fmt.Errorf("definition is empty")
		}
		return Definition{}, fmt.Errorf("failed to decode definition: %v", err)
	}

	return definition, nil
}

// ReadOverlays decodes a list of overlays, encoded as YAML or JSON.
func ReadOverlays(r io.Reader) ([]Overlay, error) {
	var overlays []Overlay

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&overlays); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode overlays: %v", err)
	}

	return overlays, nil
}

// Definition is the serializable form of a process. It is compiled into a [Model] by [New].
type Definition struct {
	Id            string                   `json:"id" yaml:"id" validate:"required"`
	Version       string                   `json:"version" yaml:"version" validate:"required"`
	Elements      []ElementDefinition      `json:"elements" yaml:"elements" validate:"required,dive"`
	SequenceFlows []SequenceFlowDefinition `json:"sequenceFlows" yaml:"sequenceFlows" validate:"dive"`
}

func (d Definition) clone() Definition {
	elements := make([]ElementDefinition, len(d.Elements))
	for i, element := range d.Elements {
		element.Properties = element.Properties.clone()
		elements[i] = element
	}

	return Definition{
		Id:            d.Id,
		Version:       d.Version,
		Elements:      elements,
		SequenceFlows: slices.Clone(d.SequenceFlows),
	}
}

type ElementDefinition struct {
	Id         string      `json:"id" yaml:"id" validate:"required"`
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	Type       ElementType `json:"type" yaml:"type" validate:"required"`
	Parent     string      `json:"parent,omitempty" yaml:"parent,omitempty"`         // ID of the enclosing event sub-process, if any.
	AttachedTo string      `json:"attachedTo,omitempty" yaml:"attachedTo,omitempty"` // ID of the task, a boundary event is attached to.
	Properties Properties  `json:"properties" yaml:"properties"`
}

// Properties holds the element type specific configuration.
type Properties struct {
	// Task

	AllowCancellation bool              `json:"allowCancellation,omitempty" yaml:"allowCancellation,omitempty"` // Determines if a task run accepts cancel requests.
	Executor          string            `json:"executor,omitempty" yaml:"executor,omitempty"`                   // Name of the task executor - if empty, the element ID is used.
	RetryLimit        int               `json:"retryLimit,omitempty" yaml:"retryLimit,omitempty" validate:"gte=0"`
	SLA               []SLA             `json:"sla,omitempty" yaml:"sla,omitempty" validate:"dive"`
	Extensions        map[string]string `json:"extensions,omitempty" yaml:"extensions,omitempty"` // Executor specific settings.

	// Events

	ErrorCode      string `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`           // Error code filter of error boundary events and event sub-processes or the code, thrown by an error end event.
	IsInterrupting bool   `json:"isInterrupting,omitempty" yaml:"isInterrupting,omitempty"` // Determines if a boundary event or event sub-process interrupts.
	Timer          *Timer `json:"timer,omitempty" yaml:"timer,omitempty"`

	// Gateways

	FirstWins bool `json:"firstWins,omitempty" yaml:"firstWins,omitempty"` // Inclusive join only: fire on the first arrival and cancel the sibling branches.
}

func (p Properties) clone() Properties {
	p.SLA = slices.Clone(p.SLA)
	p.Extensions = maps.Clone(p.Extensions)
	if p.Timer != nil {
		timer := *p.Timer
		p.Timer = &timer
	}
	return p
}

type SequenceFlowDefinition struct {
	Id        string `json:"id" yaml:"id" validate:"required"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Source    string `json:"source" yaml:"source" validate:"required"`
	Target    string `json:"target" yaml:"target" validate:"required"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"` // JavaScript expression, evaluated against the process variables.
	IsDefault bool   `json:"isDefault,omitempty" yaml:"isDefault,omitempty"` // Taken by an exclusive or inclusive gateway, when no other flow is satisfied.
}
