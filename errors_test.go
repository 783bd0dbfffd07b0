package promptreg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpError_Error(t *testing.T) {
	t.Parallel()
	err := &OpError{Op: "load", Name: "finance-bot", Selector: ByVersion(99), Err: ErrNotFound}
	assert.Equal(t, `promptreg: load "finance-bot" version 99: promptreg: prompt not found`, err.Error())

	err = &OpError{Op: "register", Name: "finance-bot", Err: ErrRegistryUnavailable}
	assert.Equal(t, `promptreg: register "finance-bot": promptreg: registry unavailable`, err.Error())
}

func TestOpError_errorsAs(t *testing.T) {
	t.Parallel()
	outer := fmt.Errorf("outer: %w", &OpError{Op: "set alias", Name: "p", Selector: ByVersion(2), Err: ErrVersionNotFound})

	var oe *OpError
	require.ErrorAs(t, outer, &oe)
	assert.Equal(t, "set alias", oe.Op)
	assert.Equal(t, ByVersion(2), oe.Selector)
	assert.ErrorIs(t, outer, ErrVersionNotFound)
}

func TestVariableError(t *testing.T) {
	t.Parallel()
	err := &VariableError{Variable: "question", Template: "finance-bot", Err: ErrMissingVariable}
	assert.Contains(t, err.Error(), "question")
	assert.Contains(t, err.Error(), "finance-bot")
	assert.Contains(t, err.Error(), "promptreg:")
	require.ErrorIs(t, err, ErrMissingVariable)
	assert.Equal(t, ErrMissingVariable, errors.Unwrap(err))
}

func TestSentinelErrors_Is(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"not found", ErrNotFound, ErrNotFound, true},
		{"version not found", ErrVersionNotFound, ErrVersionNotFound, true},
		{"wrapped configuration", fmt.Errorf("%w: MLFLOW_URI_SMAI is not set", ErrConfiguration), ErrConfiguration, true},
		{"double wrapped", fmt.Errorf("%w: %w", ErrInvalidTemplate, ErrInvalidName), ErrInvalidName, true},
		{"op error", &OpError{Op: "load", Err: ErrRegistryUnavailable}, ErrRegistryUnavailable, true},
		{"distinct not found kinds", ErrNotFound, ErrVersionNotFound, false},
		{"wrong target", ErrMissingVariable, ErrInvalidURI, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}
