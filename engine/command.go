package engine

import (
	"time"

	"github.com/gclaussn/go-flow/model"
)

// CancelProcessInstanceCmd is a command for cancelling a running process instance.
type CancelProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-"`

	// Reason, recorded for every cancelled task run.
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// CancelTaskCmd is a command for requesting the cancellation of an element's latest task run.
type CancelTaskCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"processInstanceId" validate:"required"`
	// ID of a task element.
	ElementId string `json:"elementId" validate:"required"`
	// Optional thread ID, which must match the task run's thread.
	ThreadId string `json:"threadId,omitempty"`

	// Reason, recorded when the task run is cancelled.
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// ClearHistoryCmd is a command for removing the events of a process instance or one of its elements.
type ClearHistoryCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-" validate:"required"`
	// Optional element ID. If empty, the events of all elements are removed.
	ElementId string `json:"-"`
}

// CompleteTaskCmd resolves a task run, which waits for an external completion.
//
// If an error code is provided, the task run fails. Otherwise, it completes with the variables.
type CompleteTaskCmd struct {
	// Correlation ID of the task run, recorded by its task.started event.
	CorrelationId string `json:"correlationId" validate:"required"`

	// Code of an error, used to fail the task run.
	ErrorCode string `json:"errorCode,omitempty"`
	// Message of an error, used to fail the task run.
	ErrorMessage string `json:"errorMessage,omitempty"`
	// Variables to set at process instance scope.
	Variables map[string]any `json:"variables,omitempty" validate:"max=100"`
}

// CreateProcessCmd provides data for the creation of a process.
type CreateProcessCmd struct {
	// Process definition.
	Definition model.Definition `json:"definition" validate:"required"`
	// Configuration overlays, applied once before the definition is validated.
	Overlays []model.Overlay `json:"overlays,omitempty" validate:"max=1000,dive"`
}

// GetProcessInstanceCmd is used to get a running or ended process instance.
type GetProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-"`
}

// GetSnapshotCmd is used to get the materialized view of an element's event log.
type GetSnapshotCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-" validate:"required"`
	// Element ID.
	ElementId string `json:"-" validate:"required"`
	// Optional thread ID. If empty, the element's thread within the process instance is used.
	ThreadId string `json:"-"`
}

// GetVariablesCmd is used to get the variables of a process instance.
type GetVariablesCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-"`

	// Names of variables to get.
	// If empty, all variables are included.
	Names []string `json:"-"`
}

// SetTimeCmd is a command for increasing the engine's time for testing purposes.
type SetTimeCmd struct {
	// A future point in time.
	Time time.Time `json:"time" validate:"required"`
}

// StartProcessInstanceCmd provides data for starting a process instance.
type StartProcessInstanceCmd struct {
	// ID of an existing process.
	ProcessId string `json:"processId" validate:"required"`
	// Optional version of the process. If empty, the latest version is started.
	Version string `json:"version,omitempty"`

	// Initial variables.
	Variables map[string]any `json:"variables,omitempty" validate:"max=100"`
}

// WaitProcessInstanceCmd is a command for waiting until a process instance has ended.
type WaitProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-"`
}
