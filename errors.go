package promptreg

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry operations.
// All use prefix "promptreg:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrConfiguration       = errors.New("promptreg: missing or invalid configuration")
	ErrRegistryUnavailable = errors.New("promptreg: registry unavailable")
	ErrInvalidTemplate     = errors.New("promptreg: template rejected by registry")
	ErrInvalidName         = errors.New("promptreg: invalid prompt name")
	ErrInvalidAlias        = errors.New("promptreg: invalid alias")
	ErrVersionNotFound     = errors.New("promptreg: version not found")
	ErrNotFound            = errors.New("promptreg: prompt not found")
	ErrAlreadyExists       = errors.New("promptreg: prompt already exists")
	ErrMissingVariable     = errors.New("promptreg: required template variable not provided")
	ErrInvalidPayload      = errors.New("promptreg: payload struct is invalid or missing prompt tags")
	ErrInvalidURI          = errors.New("promptreg: malformed prompt URI")
	ErrInvalidManifest     = errors.New("promptreg: manifest file is malformed")
	ErrUnsupported         = errors.New("promptreg: operation not supported by store")
)

// OpError wraps a sentinel error with the operation and prompt it concerns.
// Use errors.Is(err, ErrNotFound) and errors.As(err, &opErr) to inspect.
type OpError struct {
	Op       string
	Name     string
	Selector Selector // nil for operations that do not select a version
	Err      error
}

// Error implements error.
func (e *OpError) Error() string {
	if e.Selector != nil {
		return fmt.Sprintf("promptreg: %s %q %s: %v", e.Op, e.Name, e.Selector, e.Err)
	}
	return fmt.Sprintf("promptreg: %s %q: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *OpError) Unwrap() error { return e.Err }

// VariableError wraps a sentinel error with variable and template context.
type VariableError struct {
	Variable string
	Template string
	Err      error
}

// Error implements error.
func (e *VariableError) Error() string {
	return fmt.Sprintf("promptreg: variable %q in template %q: %v", e.Variable, e.Template, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *VariableError) Unwrap() error { return e.Err }

// Compile-time checks that the typed errors implement error.
var (
	_ error = (*OpError)(nil)
	_ error = (*VariableError)(nil)
)
