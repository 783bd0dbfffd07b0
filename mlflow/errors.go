package mlflow

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/mlflowapi"
)

// APIError is a non-2xx response from the tracking server.
// It unwraps to the promptreg sentinel matching its code and status.
type APIError struct {
	StatusCode int
	Code       string // MLflow error_code, may be empty
	Message    string
	Endpoint   string
	RequestID  string
	kind       error
}

// Error implements error.
func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("mlflow: %s: %d %s: %s", e.Endpoint, e.StatusCode, code, e.Message)
}

// Unwrap returns the promptreg sentinel for errors.Is.
func (e *APIError) Unwrap() error { return e.kind }

// classify maps a response to a promptreg sentinel.
// Not-found responses map to ErrNotFound and rejected parameters to ErrInvalidTemplate;
// callers whose parameters are not templates re-classify them.
func classify(status int, code string) error {
	switch {
	case code == mlflowapi.CodeNotFound || status == http.StatusNotFound:
		return promptreg.ErrNotFound
	case code == mlflowapi.CodeAlreadyExists:
		return promptreg.ErrAlreadyExists
	case code == mlflowapi.CodeInvalidParam || status == http.StatusBadRequest:
		return promptreg.ErrInvalidTemplate
	default:
		// 401, 403, 5xx and anything unexpected.
		return promptreg.ErrRegistryUnavailable
	}
}

// reclassify returns err with its kind replaced by to when it is from.
func reclassify(err, from, to error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !errors.Is(apiErr.kind, from) {
		return err
	}
	cp := *apiErr
	cp.kind = to
	return &cp
}

// isCode reports whether err is an APIError carrying code.
func isCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
