package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/http/common"
	"github.com/hashicorp/go-hclog"
)

// problemTypes maps engine error types to an HTTP status and a problem type.
var problemTypes = map[engine.ErrorType]struct {
	status      int
	problemType common.ProblemType
}{
	engine.ErrorAlreadyTerminal:    {http.StatusConflict, common.ProblemAlreadyTerminal},
	engine.ErrorConflict:           {http.StatusConflict, common.ProblemConflict},
	engine.ErrorNotCancellable:     {http.StatusConflict, common.ProblemNotCancellable},
	engine.ErrorNotFound:           {http.StatusNotFound, common.ProblemNotFound},
	engine.ErrorDefinitionInvalid:  {http.StatusUnprocessableEntity, common.ProblemDefinitionInvalid},
	engine.ErrorInvalidSLAOrdering: {http.StatusUnprocessableEntity, common.ProblemInvalidSLAOrdering},
	engine.ErrorNoViableFlow:       {http.StatusUnprocessableEntity, common.ProblemNoViableFlow},
	engine.ErrorValidation:         {http.StatusBadRequest, common.ProblemValidation},
}

func encodeJSONProblemResponseBody(w http.ResponseWriter, r *http.Request, logger hclog.Logger, err error) {
	var problem common.Problem
	if !errors.As(err, &problem) {
		problem = toProblem(r, logger, err)
	}

	w.Header().Set(common.HeaderContentType, common.ContentTypeProblemJson)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("failed to create JSON problem response body", "method", r.Method, "uri", r.RequestURI, "err", err)
	}
}

func encodeJSONResponseBody(w http.ResponseWriter, r *http.Request, logger hclog.Logger, v any, statusCode int) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJson)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to create JSON response body", "method", r.Method, "uri", r.RequestURI, "err", err)
	}
}

func toProblem(r *http.Request, logger hclog.Logger, err error) common.Problem {
	var engineErr engine.Error
	if errors.As(err, &engineErr) {
		if mapping, ok := problemTypes[engineErr.Type]; ok {
			errors := make([]common.Error, len(engineErr.Causes))
			for i, cause := range engineErr.Causes {
				errors[i] = common.Error{
					Pointer: cause.Pointer,
					Type:    cause.Type,
					Detail:  cause.Detail,
				}
			}

			return common.Problem{
				Status: mapping.status,
				Type:   mapping.problemType,
				Title:  engineErr.Title,
				Detail: engineErr.Detail,
				Errors: errors,
			}
		}
	}

	logger.Error("unexpected error occurred", "method", r.Method, "uri", r.RequestURI, "err", err)

	return common.Problem{
		Status: http.StatusInternalServerError,
		Title:  "unexpected error occurred",
		Detail: "see server logs",
	}
}
