package model

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TimerKind is the kind of an SLA deadline.
type TimerKind int

const (
	TimerWarning TimerKind = iota + 1
	TimerEscalation
	TimerTimeout
)

func MapTimerKind(s string) TimerKind {
	switch s {
	case "WARNING":
		return TimerWarning
	case "ESCALATION":
		return TimerEscalation
	case "TIMEOUT":
		return TimerTimeout
	default:
		return 0
	}
}

func (v TimerKind) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v TimerKind) MarshalYAML() (any, error) {
	return v.String(), nil
}

func (v TimerKind) String() string {
	switch v {
	case TimerWarning:
		return "WARNING"
	case TimerEscalation:
		return "ESCALATION"
	case TimerTimeout:
		return "TIMEOUT"
	default:
		return ""
	}
}

func (v *TimerKind) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid timer kind data %s", s)
	}
	*v = MapTimerKind(s[1 : len(s)-1])
	if *v == 0 {
		return fmt.Errorf("invalid timer kind data %s", s)
	}
	return nil
}

func (v *TimerKind) UnmarshalYAML(node *yaml.Node) error {
	*v = MapTimerKind(node.Value)
	if *v == 0 {
		return fmt.Errorf("line %d: invalid timer kind %s", node.Line, node.Value)
	}
	return nil
}

// SLA is a deadline, relative to the start of a task run.
type SLA struct {
	Kind   TimerKind       `json:"kind" yaml:"kind" validate:"required"`
	Offset ISO8601Duration `json:"offset" yaml:"offset" validate:"required,iso8601_duration"`
}

// Timer configures a timer boundary event. Exactly one of the fields should be set.
type Timer struct {
	Time         time.Time       `json:"time,omitempty" yaml:"time,omitempty"`                                           // A point in time.
	TimeCycle    string          `json:"timeCycle,omitempty" yaml:"timeCycle,omitempty" validate:"cron"`                 // CRON expression, evaluated relative to the task run start.
	TimeDuration ISO8601Duration `json:"timeDuration,omitempty" yaml:"timeDuration,omitempty" validate:"iso8601_duration"` // Duration, added to the task run start.
}

func (t Timer) IsZero() bool {
	return t.Time.IsZero() && t.TimeCycle == "" && t.TimeDuration.IsZero()
}
