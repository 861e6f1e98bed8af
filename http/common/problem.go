package common

import (
	"fmt"
	"strings"
)

// ProblemType determines if a problem is HTTP or engine related.
type ProblemType int

const (
	ProblemHttpMediaType ProblemType = iota + 1
	ProblemHttpRequestBody
	ProblemHttpRequestUri

	// engine error types
	ProblemAlreadyTerminal
	ProblemConflict
	ProblemDefinitionInvalid
	ProblemInvalidSLAOrdering
	ProblemNoViableFlow
	ProblemNotCancellable
	ProblemNotFound
	ProblemValidation
)

var problemTypes = map[ProblemType]string{
	ProblemHttpMediaType:      "HTTP_MEDIA_TYPE",
	ProblemHttpRequestBody:    "HTTP_REQUEST_BODY",
	ProblemHttpRequestUri:     "HTTP_REQUEST_URI",
	ProblemAlreadyTerminal:    "ALREADY_TERMINAL",
	ProblemConflict:           "CONFLICT",
	ProblemDefinitionInvalid:  "DEFINITION_INVALID",
	ProblemInvalidSLAOrdering: "INVALID_SLA_ORDERING",
	ProblemNoViableFlow:       "NO_VIABLE_FLOW",
	ProblemNotCancellable:     "NOT_CANCELLABLE",
	ProblemNotFound:           "NOT_FOUND",
	ProblemValidation:         "VALIDATION",
}

func MapProblemType(s string) ProblemType {
	for problemType, name := range problemTypes {
		if name == s {
			return problemType
		}
	}
	return 0
}

func (v ProblemType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", v.String())), nil
}

func (v ProblemType) String() string {
	if s, ok := problemTypes[v]; ok {
		return s
	}
	return "UNKNOWN"
}

func (v *ProblemType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 {
		return fmt.Errorf("invalid problem type data %s", s)
	}
	*v = MapProblemType(s[1 : len(s)-1])
	return nil
}

// Common format for HTTP 4xx error responses, based on https://datatracker.ietf.org/doc/html/rfc9457.
type Problem struct {
	Status int         `json:"status" validate:"required"` // HTTP status code.
	Type   ProblemType `json:"type" validate:"required"`   // Problem type.
	Title  string      `json:"title" validate:"required"`  // Human-readable problem summary.
	Detail string      `json:"detail" validate:"required"` // Human-readable, detailed information about the problem.
	Errors []Error     `json:"errors,omitempty"`           // Validation errors.
}

func (v Problem) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("HTTP %d: %s: %s: %s", v.Status, v.Type, v.Title, v.Detail))

	for i := range v.Errors {
		sb.WriteRune('\n')
		sb.WriteString(v.Errors[i].String())
	}

	return sb.String()
}

// Error represents a failed validation, pointing on a JSON property or definition element.
type Error struct {
	// A pointer, locating the invalid JSON property or definition element.
	Pointer string `json:"pointer" validate:"required"`
	// Error type.
	//
	// JSON property related values:
	//   - `cron`: value is not a valid CRON expression
	//   - `gte`: value must be greater than or equal to
	//   - `max`: array exceeds a maximum of number of items
	//   - `required`: value is required
	//   - `iso8601_duration`: value is not a valid ISO 8601 duration
	//
	// Definition related values:
	//   - `process` indicates an error on process level
	//   - `element` indicates an error on element level
	//   - `sequence_flow` indicates faulty sequence flow
	//   - `start_event`, `end_event`, `task`, `gateway`: invalid element of the type
	//   - `boundary_event`: a boundary event, which is not attached to a task
	//   - `event_sub_process`: invalid event sub-process
	//   - `join`: an incoming sequence flow of a join, which can never be reached
	//   - `timer`: a missing or invalid timer definition
	//   - `sla`: deadlines, which are not ordered WARNING < ESCALATION < TIMEOUT
	Type string `json:"type" validate:"required"`
	// Human-readable, detailed information about the error.
	Detail string `json:"detail" validate:"required"`
	// Value or key that caused the validation error.
	Value string `json:"value,omitempty"`
}

func (v Error) String() string {
	return fmt.Sprintf("%s: %s", v.Pointer, v.Detail)
}
