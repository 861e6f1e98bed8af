package common

import (
	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
)

// Process instance variable response.
type GetVariablesRes struct {
	Count     int            `json:"count" validate:"required,gte=0"` // Number of variables.
	Variables map[string]any `json:"variables" validate:"required"`   // Variables by name.
}

// query responses

// Response of an event query.
type EventRes struct {
	Count   int              `json:"count" validate:"required,gte=0"` // Number of results.
	Results []eventlog.Event `json:"results" validate:"required"`     // Query results.
}

// Response of a process instance query.
type ProcessInstanceRes struct {
	Count   int                      `json:"count" validate:"required,gte=0"` // Number of results.
	Results []engine.ProcessInstance `json:"results" validate:"required"`     // Query results.
}

// Response of a task run query.
type TaskRunRes struct {
	Count   int              `json:"count" validate:"required,gte=0"` // Number of results.
	Results []engine.TaskRun `json:"results" validate:"required"`     // Query results.
}
