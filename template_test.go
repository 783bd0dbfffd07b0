package promptreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Variables(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body string
		want []string
	}{
		{"no placeholders", nil},
		{"{{ a }} and {{b}} and {{ a }}", []string{"a", "b"}},
		{"single {brace} is literal", nil},
		{"{{ 1bad }} {{ _ok }}", []string{"_ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, (&Template{Body: tt.body}).Variables())
		})
	}
}

func TestTemplate_Format(t *testing.T) {
	t.Parallel()
	tpl := &Template{Name: "qa", Body: "Q: {{ question }} ({{n}}) {literal}"}
	got, err := tpl.Format(map[string]any{"question": "why?", "n": 3, "extra": true})
	require.NoError(t, err)
	assert.Equal(t, "Q: why? (3) {literal}", got)

	_, err = tpl.Format(map[string]any{"question": "why?"})
	var ve *VariableError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "n", ve.Variable)
	assert.Equal(t, "qa", ve.Template)
	assert.ErrorIs(t, err, ErrMissingVariable)
}

func TestTemplate_FormatStruct(t *testing.T) {
	t.Parallel()
	type payload struct {
		Context  string `prompt:"context"`
		Question string `prompt:"question"`
		Ignored  string
	}
	tpl := &Template{Body: "{{ context }} / {{ question }}"}
	got, err := tpl.FormatStruct(payload{Context: "c", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "c / q", got)

	_, err = tpl.FormatStruct(nil)
	require.ErrorIs(t, err, ErrInvalidPayload)
	_, err = tpl.FormatStruct("not a struct")
	require.ErrorIs(t, err, ErrInvalidPayload)
	_, err = tpl.FormatStruct(struct{ A string }{})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCloneTemplate(t *testing.T) {
	t.Parallel()
	assert.Nil(t, CloneTemplate(nil))
	orig := &Template{Name: "p", Tags: map[string]string{"a": "1"}, Aliases: []string{"Production"}}
	cp := CloneTemplate(orig)
	cp.Tags["a"] = "2"
	cp.Aliases[0] = "Staging"
	assert.Equal(t, "1", orig.Tags["a"])
	assert.Equal(t, "Production", orig.Aliases[0])
}
