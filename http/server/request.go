package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
	"github.com/gclaussn/go-flow/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0] // e.g. `json:"timeCycle,omitempty"` -> timeCycle
	})

	validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		if v == "" {
			return true
		}
		return gronx.IsValid(v)
	})
	validate.RegisterValidation("iso8601_duration", func(fl validator.FieldLevel) bool {
		_, err := model.NewISO8601Duration(fl.Field().String())
		return err == nil
	})

	return validate
}

// decodeJSONRequestBody decodes the request body using v and validates it.
// Media type, request body or validation related errors are returned as a Problem.
//
// inspired by https://www.alexedwards.net/blog/how-to-properly-parse-a-json-request-body
func decodeJSONRequestBody(w http.ResponseWriter, r *http.Request, v any) error {
	if contentType := r.Header.Get(common.HeaderContentType); contentType != "" {
		mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
		if mediaType != common.ContentTypeJson {
			return common.Problem{
				Status: http.StatusUnsupportedMediaType,
				Type:   common.ProblemHttpMediaType,
				Title:  "unsupported media type",
				Detail: fmt.Sprintf("media type %s is not supported", mediaType),
			}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576) // 1mb = 1024 * 1024

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		problem := common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestBody,
			Title:  "invalid request body",
		}

		switch {
		case errors.As(err, &syntaxError):
			problem.Detail = fmt.Sprintf("malformed JSON at position %d", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			problem.Detail = "unexpected end of JSON"
		case errors.As(err, &unmarshalTypeError):
			problem.Detail = fmt.Sprintf("JSON field %s has an invalid value at position %d", unmarshalTypeError.Field, unmarshalTypeError.Offset)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			problem.Detail = fmt.Sprintf("unknown JSON field %s", fieldName)
		case errors.Is(err, io.EOF):
			problem.Detail = "request body is empty"
		case errors.As(err, &maxBytesError):
			problem.Detail = "request body size must not exceed 1MB"
		default:
			problem.Detail = fmt.Sprintf("failed to unmarshal JSON: %v", err)
		}

		return problem
	}

	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}

		return common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestBody,
			Title:  "invalid request body",
			Detail: "failed to validate request body",
			Errors: mapValidationErrors(validationErrors),
		}
	}

	return nil
}

func mapValidationErrors(validationErrors validator.ValidationErrors) []common.Error {
	errors := make([]common.Error, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		var (
			detail string
			value  string
		)
		switch fieldError.Tag() {
		case "gte":
			detail = fmt.Sprintf("must be greater than or equal to %s", fieldError.Param())
			value = fmt.Sprintf("%v", fieldError.Value())
		case "max":
			detail = fmt.Sprintf("exceeds a maximum of %s", fieldError.Param())
			value = fmt.Sprintf("%v", fieldError.Value())
		case "required":
			detail = "is required"
		// custom validation
		case "cron", "iso8601_duration":
			detail = "is invalid"
			value = fmt.Sprintf("%v", fieldError.Value())
		default:
			detail = "unknown error"
			value = fmt.Sprintf("%v", fieldError.Value())
		}

		errors = append(errors, common.Error{
			Pointer: toPointer(fieldError.Namespace()),
			Type:    fieldError.Tag(),
			Detail:  detail,
			Value:   value,
		})
	}
	return errors
}

// toPointer converts a validator namespace into a JSON pointer, e.g.
// "CreateProcessCmd.definition.elements[2].id" -> "#/definition/elements/2/id".
func toPointer(namespace string) string {
	var (
		pointerBuilder strings.Builder
		next           rune
	)
	for _, r := range namespace {
		if pointerBuilder.Len() == 0 {
			// skip until first dot
			if r == '.' {
				pointerBuilder.WriteString("#/")
			}
			continue
		}

		switch r {
		case '.', '[':
			next = '/'
		case ']':
			continue
		default:
			next = r
		}

		pointerBuilder.WriteRune(next)
	}
	return pointerBuilder.String()
}

func parseId(r *http.Request) (string, error) {
	return parsePathValue(r, "id")
}

func parsePathValue(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if strings.TrimSpace(value) == "" {
		return "", common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestUri,
			Title:  "invalid path parameter " + name,
			Detail: fmt.Sprintf("path parameter %s must not be empty or blank", name),
		}
	}
	return value, nil
}

func parseEventKind(r *http.Request) (eventlog.EventKind, error) {
	kindValue := r.URL.Query().Get(common.QueryKind)
	if kindValue == "" {
		return 0, nil
	}

	kind := eventlog.MapEventKind(kindValue)
	if kind == 0 {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestUri,
			Title:  "invalid query parameter " + common.QueryKind,
			Detail: "unknown event kind " + kindValue,
		}
	}
	return kind, nil
}

func parseNames(r *http.Request) []string {
	var names []string
	if namesValues, ok := r.URL.Query()[common.QueryNames]; ok {
		for _, namesValue := range namesValues {
			for _, name := range strings.Split(namesValue, ",") {
				if name = strings.TrimSpace(name); name != "" {
					names = append(names, name)
				}
			}
		}
	}
	return names
}

func parseQueryOptions(r *http.Request) (engine.QueryOptions, error) {
	limit, err := parseQueryInt(r, common.QueryLimit)
	if err != nil {
		return engine.QueryOptions{}, err
	}
	offset, err := parseQueryInt(r, common.QueryOffset)
	if err != nil {
		return engine.QueryOptions{}, err
	}

	return engine.QueryOptions{
		Limit:  limit,
		Offset: offset,
	}, nil
}

func parseQueryInt(r *http.Request, name string) (int, error) {
	values, ok := r.URL.Query()[name]
	if !ok {
		return 0, nil
	}

	v, err := strconv.ParseInt(values[0], 10, 32)
	if err != nil {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemHttpRequestUri,
			Title:  "invalid query parameter " + name,
			Detail: "failed to parse value " + values[0],
		}
	}
	if v < 0 {
		return 0, common.Problem{
			Status: http.StatusBadRequest,
			Type:   common.ProblemValidation,
			Title:  "invalid query parameter " + name,
			Detail: fmt.Sprintf("%s %d must be greater than or equal to 0", name, v),
		}
	}
	return int(v), nil
}
