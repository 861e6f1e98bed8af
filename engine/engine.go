package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gclaussn/go-flow/eventlog"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultEngineId = "default-engine" // Default ID of an engine, used when no specific ID is provided via [Options].
)

const (
	ErrorCodeCancelledByUser = "CancelledByUser" // Error code, used to route a task run that was cancelled on request.
	ErrorCodeSLATimeout      = "SLATimeout"      // Error code of a task run that exceeded its TIMEOUT deadline.
)

// An Engine starts, executes and manages process instances. Each process instance is driven by a single
// writer, which records everything that happens as events in an append-only event log.
type Engine interface {
	// CancelProcessInstance cancels all task runs of a running process instance.
	//
	// Task runs, backed by an executor, receive a cancel request, which is subject to AllowCancellation.
	// User tasks and pending task runs are cancelled immediately. The process instance ends CANCELLED,
	// when all task runs are terminal.
	CancelProcessInstance(context.Context, CancelProcessInstanceCmd) (ProcessInstance, error)

	// CancelTask requests the cancellation of the latest task run of an element.
	//
	// An error of type [ErrorNotCancellable] is returned, if the element does not allow cancellation.
	// An error of type [ErrorAlreadyTerminal] is returned, if the task run has already ended.
	// A repeated request, while the task run is cancelling, is acknowledged without effect.
	CancelTask(context.Context, CancelTaskCmd) (TaskRun, error)

	// ClearHistory removes the events of a process instance or one of its elements.
	ClearHistory(context.Context, ClearHistoryCmd) error

	// CompleteTask resolves a user task or a task run, awaiting an external signal.
	//
	// A second resolution of the same correlation ID returns an error of type [ErrorAlreadyTerminal].
	CompleteTask(context.Context, CompleteTaskCmd) (TaskRun, error)

	// CreateProcess validates a definition, applies configuration overlays and registers the resulting process.
	//
	// If a process with the same ID and version exists, the definitions are compared.
	// When the definitions equal, the existing process is returned.
	// When the definitions differ, an error of type [ErrorConflict] is returned.
	CreateProcess(context.Context, CreateProcessCmd) (Process, error)

	// GetProcessInstance gets a running or ended process instance.
	GetProcessInstance(context.Context, GetProcessInstanceCmd) (ProcessInstance, error)

	// GetSnapshot returns the materialized view of an element's event log.
	GetSnapshot(context.Context, GetSnapshotCmd) (eventlog.Snapshot, error)

	// GetVariables gets the variables of a running or ended process instance.
	GetVariables(context.Context, GetVariablesCmd) (map[string]any, error)

	// QueryEvents queries the event log of a process instance.
	QueryEvents(context.Context, eventlog.Criteria) ([]eventlog.Event, error)

	// QueryProcessInstances queries running and ended process instances.
	QueryProcessInstances(context.Context, ProcessInstanceCriteria) ([]ProcessInstance, error)

	// QueryTaskRuns queries the task runs of process instances.
	QueryTaskRuns(context.Context, TaskRunCriteria) ([]TaskRun, error)

	// SetTime increases the engine's time for testing purposes. Due timers fire in due order.
	SetTime(context.Context, SetTimeCmd) error

	// StartProcessInstance starts an instance of an existing process.
	//
	// The start is synchronous: when the first advance fails, for example since no outgoing flow of a
	// gateway is viable, an error is returned and nothing is recorded.
	StartProcessInstance(context.Context, StartProcessInstanceCmd) (ProcessInstance, error)

	// Subscribe streams the events, matching the criteria. Stored events are delivered first, followed by live events.
	//
	// The channel is closed, when the context is done or when the subscriber falls behind.
	Subscribe(context.Context, eventlog.Criteria) (<-chan eventlog.Event, error)

	// WaitProcessInstance blocks until a process instance has ended or the context is done.
	WaitProcessInstance(context.Context, WaitProcessInstanceCmd) (ProcessInstance, error)

	// Shutdown shuts the engine down.
	Shutdown()
}

// Options are common configuration options that are shared between engine implementations.
type Options struct {
	CancelGracePeriod time.Duration           // Time, an engine-initiated cancellation waits for a task run to end, before it is terminated.
	DefaultQueryLimit int                     // Default limit for queries, executed without an explicit limit.
	DefaultRetryLimit int                     // Maximum number of retries of a task run, if the element defines no retry limit.
	EngineId          string                  // ID of the engine.
	EventLog          eventlog.Store          // Store of the event log. If nil, an in-memory store is used.
	Executors         map[string]TaskExecutor // Task executors by name.
	InboxSize         int                     // Capacity of a process instance's inbox.
	Logger            hclog.Logger            // Logger of the engine.
	Registerer        prometheus.Registerer   // Registerer of the engine metrics. If nil, metrics are not registered.
	SubscriptionSize  int                     // Number of live events, a subscription buffers, before it is closed.
}

func (o Options) Validate() error {
	if strings.TrimSpace(o.EngineId) == "" {
		return errors.New("engine ID must not be empty or blank")
	}
	if o.CancelGracePeriod <= 0 {
		return errors.New("cancel grace period must be greater than 0")
	}
	if o.DefaultQueryLimit < 1 {
		return errors.New("default query limit must be greater than or equal to 1")
	}
	if o.DefaultRetryLimit < 0 {
		return errors.New("default retry limit must be greater than or equal to 0")
	}
	if o.InboxSize < 1 {
		return errors.New("inbox size must be greater than or equal to 1")
	}
	if o.Logger == nil {
		return errors.New("logger must not be nil")
	}
	if o.SubscriptionSize < 1 {
		return errors.New("subscription size must be greater than or equal to 1")
	}
	for name, executor := range o.Executors {
		if executor == nil {
			return fmt.Errorf("executor %s must not be nil", name)
		}
	}
	return nil
}

// QueryOptions are used to limit or offset query results.
// The zero value does not affect a query.
type QueryOptions struct {
	// Limit specifies the maximum number of results to return.
	// If Limit <= 0, the option's DefaultQueryLimit is applied.
	Limit int `json:"limit,omitempty"`
	// Offset specifies the number of results to skip, before returning any result.
	// If Offset <= 0, no results are skipped.
	Offset int `json:"offset,omitempty"`
}

type Error struct {
	Type   ErrorType
	Title  string
	Detail string
	Causes []ErrorCause
}

func (e Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s: %s", e.Type, e.Title, e.Detail))

	for _, cause := range e.Causes {
		sb.WriteRune('\n')
		sb.WriteString(cause.String())
	}

	return sb.String()
}

type ErrorType int

const (
	ErrorBug ErrorType = iota + 1
	ErrorConflict
	ErrorNotFound
	ErrorValidation

	ErrorAlreadyTerminal
	ErrorCancelledByUser
	ErrorDefinitionInvalid
	ErrorInvalidSLAOrdering
	ErrorNoViableFlow
	ErrorNotCancellable
	ErrorSLATimeout
	ErrorTaskFailure
)

func MapErrorType(s string) ErrorType {
	switch s {
	case "BUG":
		return ErrorBug
	case "CONFLICT":
		return ErrorConflict
	case "NOT_FOUND":
		return ErrorNotFound
	case "VALIDATION":
		return ErrorValidation
	case "ALREADY_TERMINAL":
		return ErrorAlreadyTerminal
	case "CANCELLED_BY_USER":
		return ErrorCancelledByUser
	case "DEFINITION_INVALID":
		return ErrorDefinitionInvalid
	case "INVALID_SLA_ORDERING":
		return ErrorInvalidSLAOrdering
	case "NO_VIABLE_FLOW":
		return ErrorNoViableFlow
	case "NOT_CANCELLABLE":
		return ErrorNotCancellable
	case "SLA_TIMEOUT":
		return ErrorSLATimeout
	case "TASK_FAILURE":
		return ErrorTaskFailure
	default:
		return 0
	}
}

func (v ErrorType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", v.String())), nil
}

func (v ErrorType) String() string {
	switch v {
	case ErrorBug:
		return "BUG"
	case ErrorConflict:
		return "CONFLICT"
	case ErrorNotFound:
		return "NOT_FOUND"
	case ErrorValidation:
		return "VALIDATION"
	case ErrorAlreadyTerminal:
		return "ALREADY_TERMINAL"
	case ErrorCancelledByUser:
		return "CANCELLED_BY_USER"
	case ErrorDefinitionInvalid:
		return "DEFINITION_INVALID"
	case ErrorInvalidSLAOrdering:
		return "INVALID_SLA_ORDERING"
	case ErrorNoViableFlow:
		return "NO_VIABLE_FLOW"
	case ErrorNotCancellable:
		return "NOT_CANCELLABLE"
	case ErrorSLATimeout:
		return "SLA_TIMEOUT"
	case ErrorTaskFailure:
		return "TASK_FAILURE"
	default:
		return "UNKNOWN"
	}
}

func (v *ErrorType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid error type data %s", s)
	}
	*v = MapErrorType(s[1 : len(s)-1])
	return nil
}

// A cause of a definition or validation [Error] like an unreachable end event or an unattached boundary event.
type ErrorCause struct {
	Pointer string // A pointer, locating the invalid element or sequence flow - e.g. "/elements/3/attachedTo".
	Type    string // Type indicator.
	Detail  string // Human-readable, detailed information about the cause.
}

func (e ErrorCause) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Type, e.Pointer, e.Detail)
}
