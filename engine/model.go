package engine

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-flow/model"
)

// InstanceStatus describes the lifecycle of a process instance.
type InstanceStatus int

const (
	InstanceCancelled InstanceStatus = iota + 1
	InstanceCompleted
	InstanceFailed
	InstanceRunning
)

func MapInstanceStatus(s string) InstanceStatus {
	switch s {
	case "CANCELLED":
		return InstanceCancelled
	case "COMPLETED":
		return InstanceCompleted
	case "FAILED":
		return InstanceFailed
	case "RUNNING":
		return InstanceRunning
	default:
		return 0
	}
}

// IsTerminal determines if a process instance with the status has ended.
func (v InstanceStatus) IsTerminal() bool {
	return v == InstanceCancelled || v == InstanceCompleted || v == InstanceFailed
}

func (v InstanceStatus) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v InstanceStatus) String() string {
	switch v {
	case InstanceCancelled:
		return "CANCELLED"
	case InstanceCompleted:
		return "COMPLETED"
	case InstanceFailed:
		return "FAILED"
	case InstanceRunning:
		return "RUNNING"
	default:
		return ""
	}
}

func (v *InstanceStatus) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 2 {
		s = s[1 : len(s)-1]
		*v = MapInstanceStatus(s)
	}
	if *v == 0 {
		return fmt.Errorf("invalid instance status data %s", s)
	}
	return nil
}

// TaskRunStatus describes the lifecycle of a task run. A status only moves forward:
//
//	PENDING -> RUNNING -> CANCELLING -> CANCELLED | COMPLETED | FAILED
//
// PENDING and RUNNING can also move to a terminal status directly.
type TaskRunStatus int

const (
	TaskRunCancelled TaskRunStatus = iota + 1
	TaskRunCancelling
	TaskRunCompleted
	TaskRunFailed
	TaskRunPending
	TaskRunRunning
)

func MapTaskRunStatus(s string) TaskRunStatus {
	switch s {
	case "CANCELLED":
		return TaskRunCancelled
	case "CANCELLING":
		return TaskRunCancelling
	case "COMPLETED":
		return TaskRunCompleted
	case "FAILED":
		return TaskRunFailed
	case "PENDING":
		return TaskRunPending
	case "RUNNING":
		return TaskRunRunning
	default:
		return 0
	}
}

// CanMoveTo determines if a task run can move from the status to the next status.
func (v TaskRunStatus) CanMoveTo(next TaskRunStatus) bool {
	switch v {
	case TaskRunPending:
		return next != TaskRunPending
	case TaskRunRunning:
		return next != TaskRunPending && next != TaskRunRunning
	case TaskRunCancelling:
		return next.IsTerminal()
	default:
		return false
	}
}

// IsTerminal determines if a task run with the status has ended.
func (v TaskRunStatus) IsTerminal() bool {
	return v == TaskRunCancelled || v == TaskRunCompleted || v == TaskRunFailed
}

func (v TaskRunStatus) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v TaskRunStatus) String() string {
	switch v {
	case TaskRunCancelled:
		return "CANCELLED"
	case TaskRunCancelling:
		return "CANCELLING"
	case TaskRunCompleted:
		return "COMPLETED"
	case TaskRunFailed:
		return "FAILED"
	case TaskRunPending:
		return "PENDING"
	case TaskRunRunning:
		return "RUNNING"
	default:
		return ""
	}
}

func (v *TaskRunStatus) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 2 {
		s = s[1 : len(s)-1]
		*v = MapTaskRunStatus(s)
	}
	if *v == 0 {
		return fmt.Errorf("invalid task run status data %s", s)
	}
	return nil
}

// Process is a validated definition, which can be started.
type Process struct {
	Id      string `json:"id"`      // Process ID, as defined by the definition.
	Version string `json:"version"` // Process version.

	CreatedAt  time.Time        `json:"createdAt"`  // Creation time.
	Definition model.Definition `json:"definition"` // Definition with all configuration overlays applied.
}

func (v Process) String() string {
	return fmt.Sprintf("%s:%s", v.Id, v.Version)
}

// ProcessInstance is an instance of a process.
type ProcessInstance struct {
	Id string `json:"id"` // Process instance ID.

	ProcessId string `json:"processId"` // ID of the related process.
	Version   string `json:"version"`   // Process version.

	CreatedAt time.Time      `json:"createdAt"`         // Start time.
	EndedAt   *time.Time     `json:"endedAt,omitempty"` // End time.
	Failure   *Failure       `json:"failure,omitempty"` // Failure, that caused a FAILED status.
	Status    InstanceStatus `json:"status"`            // Current status.
}

func (v ProcessInstance) IsEnded() bool {
	return v.EndedAt != nil
}

func (v ProcessInstance) String() string {
	return v.Id
}

// Failure reports the element and the error, a process instance failed with.
type Failure struct {
	ElementId string    `json:"elementId"`           // ID of the causing element.
	Type      ErrorType `json:"type"`                // Error type like TASK_FAILURE, SLA_TIMEOUT or NO_VIABLE_FLOW.
	ErrorCode string    `json:"errorCode,omitempty"` // Error code, reported by the task run or error end event.
	Message   string    `json:"message,omitempty"`
}

func (v Failure) String() string {
	return fmt.Sprintf("%s: %s: %s %s", v.ElementId, v.Type, v.ErrorCode, v.Message)
}

// ProcessInstanceCriteria specifies the results, returned by a process instance query.
type ProcessInstanceCriteria struct {
	Id string `json:"id,omitempty"` // Process instance filter.

	ProcessId string         `json:"processId,omitempty"` // Process filter.
	Status    InstanceStatus `json:"status,omitempty"`    // Status filter.

	Options QueryOptions `json:"options,omitempty"`
}

// TaskRun is a single execution of a task element.
type TaskRun struct {
	Id                string `json:"id"`                // Task run ID.
	ProcessInstanceId string `json:"processInstanceId"` // ID of the enclosing process instance.
	ElementId         string `json:"elementId"`         // ID of the task element.
	ThreadId          string `json:"threadId"`          // Thread, the task run's events are logged to.
	CorrelationId     string `json:"correlationId"`     // ID, used to resolve the task run externally.

	Cancellable           bool          `json:"cancellable"`                     // Determines if the task run accepts cancel requests.
	CancellationRequested bool          `json:"cancellationRequested,omitempty"` // Determines if a cancellation has been requested.
	Status                TaskRunStatus `json:"status"`                          // Current status.

	ErrorCode     string `json:"errorCode,omitempty"`     // Error code of a FAILED or CANCELLED task run.
	Message       string `json:"message,omitempty"`       // Error message of a FAILED task run.
	PartialResult string `json:"partialResult,omitempty"` // Result, flushed before the task run was cancelled or timed out.
	Reason        string `json:"reason,omitempty"`        // Reason for the terminal status.

	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func (v TaskRun) IsEnded() bool {
	return v.Status.IsTerminal()
}

func (v TaskRun) String() string {
	return fmt.Sprintf("%s/%s/%s", v.ProcessInstanceId, v.ElementId, v.Id)
}

// TaskRunCriteria specifies the results, returned by a task run query.
type TaskRunCriteria struct {
	ProcessInstanceId string `json:"processInstanceId,omitempty"` // Process instance filter.

	CorrelationId string        `json:"correlationId,omitempty"` // Correlation filter.
	ElementId     string        `json:"elementId,omitempty"`     // Element filter.
	Status        TaskRunStatus `json:"status,omitempty"`        // Status filter.

	Options QueryOptions `json:"options,omitempty"`
}
