package promptreg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"finance-bot", "Finance Bot 2", "a.b_c"} {
		assert.NoError(t, ValidateName(ok), ok)
	}
	for _, bad := range []string{"", "  ", ".", "..", "a/b", `a\b`, "a@b", "a:b", strings.Repeat("x", 257)} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, bad)
	}
}

func TestValidateAlias(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"Production", "staging-2", "canary_a", "v", "version1"} {
		assert.NoError(t, ValidateAlias(ok), ok)
	}
	for _, bad := range []string{"", "latest", "LATEST", "v3", "V10", "has space", "a.b", strings.Repeat("a", 257)} {
		assert.ErrorIs(t, ValidateAlias(bad), ErrInvalidAlias, bad)
	}
}
