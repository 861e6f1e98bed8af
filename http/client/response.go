package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/http/common"
)

// errorTypes maps the problem types of engine errors back to the error types.
var errorTypes = map[common.ProblemType]engine.ErrorType{
	common.ProblemAlreadyTerminal:    engine.ErrorAlreadyTerminal,
	common.ProblemConflict:           engine.ErrorConflict,
	common.ProblemDefinitionInvalid:  engine.ErrorDefinitionInvalid,
	common.ProblemInvalidSLAOrdering: engine.ErrorInvalidSLAOrdering,
	common.ProblemNoViableFlow:       engine.ErrorNoViableFlow,
	common.ProblemNotCancellable:     engine.ErrorNotCancellable,
	common.ProblemNotFound:           engine.ErrorNotFound,
	common.ProblemValidation:         engine.ErrorValidation,
}

// decodeJSONResponseBody decodes a JSON response body into v, if v is not nil.
// A problem, which represents an engine error, is returned as [engine.Error]. Other problems are returned as [common.Problem].
func decodeJSONResponseBody(res *http.Response, v any) error {
	defer res.Body.Close()

	decoder := json.NewDecoder(res.Body)

	contentType := res.Header.Get(common.HeaderContentType)
	if contentType == common.ContentTypeProblemJson {
		var problem common.Problem
		if err := decoder.Decode(&problem); err != nil {
			return fmt.Errorf("failed to decode JSON problem response body: %v", err)
		}

		errorType, ok := errorTypes[problem.Type]
		if !ok {
			return problem
		}

		causes := make([]engine.ErrorCause, len(problem.Errors))
		for i, e := range problem.Errors {
			causes[i] = engine.ErrorCause{
				Pointer: e.Pointer,
				Type:    e.Type,
				Detail:  e.Detail,
			}
		}
		if len(causes) == 0 {
			causes = nil
		}

		return engine.Error{
			Type:   errorType,
			Title:  problem.Title,
			Detail: problem.Detail,
			Causes: causes,
		}
	}

	if res.StatusCode >= 300 {
		text := fmt.Sprintf(
			"%s %s: HTTP %d",
			res.Request.Method,
			res.Request.URL.Path,
			res.StatusCode,
		)

		b, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("%s: %v", text, err)
		} else if len(b) != 0 {
			return fmt.Errorf("%s: %s", text, string(b))
		} else {
			return errors.New(text)
		}
	}

	if v == nil {
		return nil
	}
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("failed to decode JSON response body: %v", err)
	}

	return nil
}
