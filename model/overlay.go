package model

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Overlay changes the configuration of a single element or sequence flow. Nil fields are left unchanged.
type Overlay struct {
	Id string `json:"id" yaml:"id" validate:"required"` // ID of an element or sequence flow.

	AllowCancellation *bool             `json:"allowCancellation,omitempty" yaml:"allowCancellation,omitempty"`
	Executor          *string           `json:"executor,omitempty" yaml:"executor,omitempty"`
	RetryLimit        *int              `json:"retryLimit,omitempty" yaml:"retryLimit,omitempty" validate:"omitempty,gte=0"`
	SLA               []SLA             `json:"sla,omitempty" yaml:"sla,omitempty" validate:"dive"` // Replaces all SLA deadlines, if not nil.
	Extensions        map[string]string `json:"extensions,omitempty" yaml:"extensions,omitempty"`   // Merged into the existing extensions.

	ErrorCode      *string `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	IsInterrupting *bool   `json:"isInterrupting,omitempty" yaml:"isInterrupting,omitempty"`
	Timer          *Timer  `json:"timer,omitempty" yaml:"timer,omitempty"`
	FirstWins      *bool   `json:"firstWins,omitempty" yaml:"firstWins,omitempty"`

	Condition *string `json:"condition,omitempty" yaml:"condition,omitempty"` // Sequence flows only.
}

// Apply performs a configuration overlay pass and returns a new model. The receiver is not modified.
func (m *Model) Apply(overlays ...Overlay) (*Model, error) {
	definition := m.definition.clone()

	elementIndex := make(map[string]int, len(definition.Elements))
	for i, element := range definition.Elements {
		elementIndex[element.Id] = i
	}
	sequenceFlowIndex := make(map[string]int, len(definition.SequenceFlows))
	for i, sequenceFlow := range definition.SequenceFlows {
		sequenceFlowIndex[sequenceFlow.Id] = i
	}

	var errs []error
	for _, overlay := range overlays {
		if i, ok := sequenceFlowIndex[overlay.Id]; ok {
			if overlay.Condition != nil {
				definition.SequenceFlows[i].Condition = *overlay.Condition
			}
			continue
		}

		i, ok := elementIndex[overlay.Id]
		if !ok {
			errs = append(errs, fmt.Errorf("overlay targets unknown element or sequence flow %s", overlay.Id))
			continue
		}
		if overlay.Condition != nil {
			errs = append(errs, fmt.Errorf("overlay %s: condition is only applicable to sequence flows", overlay.Id))
			continue
		}

		p := &definition.Elements[i].Properties
		if overlay.AllowCancellation != nil {
			p.AllowCancellation = *overlay.AllowCancellation
		}
		if overlay.Executor != nil {
			p.Executor = *overlay.Executor
		}
		if overlay.RetryLimit != nil {
			p.RetryLimit = *overlay.RetryLimit
		}
		if overlay.SLA != nil {
			p.SLA = slices.Clone(overlay.SLA)
		}
		if len(overlay.Extensions) != 0 {
			if p.Extensions == nil {
				p.Extensions = make(map[string]string, len(overlay.Extensions))
			}
			maps.Copy(p.Extensions, overlay.Extensions)
		}
		if overlay.ErrorCode != nil {
			p.ErrorCode = *overlay.ErrorCode
		}
		if overlay.IsInterrupting != nil {
			p.IsInterrupting = *overlay.IsInterrupting
		}
		if overlay.Timer != nil {
			timer := *overlay.Timer
			p.Timer = &timer
		}
		if overlay.FirstWins != nil {
			p.FirstWins = *overlay.FirstWins
		}
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return New(definition)
}
