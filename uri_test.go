package promptreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURI(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "prompts:/finance-bot/2", URI("finance-bot", ByVersion(2)))
	assert.Equal(t, "prompts:/finance-bot@Production", URI("finance-bot", ByAlias("Production")))
	assert.Equal(t, "prompts:/finance-bot", URI("finance-bot", nil))
	assert.Equal(t, "prompts:/p/3", (&Template{Name: "p", Version: 3}).URI())
}

func TestParseURI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		uri      string
		wantName string
		wantSel  Selector
		wantErr  bool
	}{
		{"prompts:/finance-bot/1", "finance-bot", ByVersion(1), false},
		{"prompts:/finance-bot@Production", "finance-bot", ByAlias("Production"), false},
		{"prompts:/finance-bot", "", nil, true},
		{"prompts:/finance-bot/0", "", nil, true},
		{"prompts:/finance-bot/x", "", nil, true},
		{"prompts:/finance-bot@", "", nil, true},
		{"prompts:/@Production", "", nil, true},
		{"models:/finance-bot/1", "", nil, true},
		{"", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			t.Parallel()
			name, sel, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantSel, sel)
			assert.Equal(t, tt.uri, URI(name, sel))
		})
	}
}
