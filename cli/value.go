package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
)

// eventKindValue is a custom flag value for an event kind.
type eventKindValue eventlog.EventKind

func (v *eventKindValue) Set(s string) error {
	kind := eventlog.MapEventKind(s)
	if kind == 0 {
		return fmt.Errorf("invalid event kind %s", s)
	}

	*v = eventKindValue(kind)
	return nil
}

func (v eventKindValue) String() string {
	if v == 0 {
		return ""
	}
	return eventlog.EventKind(v).String()
}

func (v eventKindValue) Type() string {
	return "eventKind"
}

// instanceStatusValue is a custom flag value for a process instance status.
type instanceStatusValue engine.InstanceStatus

func (v *instanceStatusValue) Set(s string) error {
	status := engine.MapInstanceStatus(s)
	if status == 0 {
		return fmt.Errorf("invalid instance status %s", s)
	}

	*v = instanceStatusValue(status)
	return nil
}

func (v instanceStatusValue) String() string {
	if v == 0 {
		return ""
	}
	return engine.InstanceStatus(v).String()
}

func (v instanceStatusValue) Type() string {
	return "instanceStatus"
}

// taskRunStatusValue is a custom flag value for a task run status.
type taskRunStatusValue engine.TaskRunStatus

func (v *taskRunStatusValue) Set(s string) error {
	status := engine.MapTaskRunStatus(s)
	if status == 0 {
		return fmt.Errorf("invalid task run status %s", s)
	}

	*v = taskRunStatusValue(status)
	return nil
}

func (v taskRunStatusValue) String() string {
	if v == 0 {
		return ""
	}
	return engine.TaskRunStatus(v).String()
}

func (v taskRunStatusValue) Type() string {
	return "taskRunStatus"
}

type timeValue time.Time

func (v *timeValue) Set(s string) error {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}

	*v = timeValue(t)
	return nil
}

func (v timeValue) String() string {
	if time.Time(v).IsZero() {
		return ""
	}
	return time.Time(v).Format(time.RFC3339)
}

func (v timeValue) Type() string {
	return "time"
}

// mapVariables decodes variable values, given as name=JSON pairs. A value, that is no valid JSON, is used as string.
func mapVariables(variablesV map[string]string) map[string]any {
	if len(variablesV) == 0 {
		return nil
	}

	variables := make(map[string]any, len(variablesV))
	for name, valueJson := range variablesV {
		var value any
		if err := json.Unmarshal([]byte(valueJson), &value); err != nil {
			value = valueJson
		}
		variables[name] = value
	}
	return variables
}
