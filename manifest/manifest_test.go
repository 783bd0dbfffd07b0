package manifest

import (
	"embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/skosovsky/promptreg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

//go:embed testdata
var testdataFS embed.FS

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseBytes_ValidSimple(t *testing.T) {
	t.Parallel()
	m, err := ParseBytes([]byte(`
name: finance-bot
template: "You are a helper."
`))
	require.NoError(t, err)
	assert.Equal(t, "finance-bot", m.Name)
	assert.Equal(t, "You are a helper.", m.Template)
	assert.Empty(t, m.CommitMessage)
	assert.Nil(t, m.Tags)
	assert.Empty(t, m.Options())
}

func TestParseBytes_ValidFull(t *testing.T) {
	t.Parallel()
	data, err := testdataFS.ReadFile("testdata/valid_full.yaml")
	require.NoError(t, err)
	m, err := ParseBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "finance-bot", m.Name)
	assert.Equal(t, "Fine-tune response topic adherence", m.CommitMessage)
	assert.Equal(t, "Production", m.Alias)
	assert.Equal(t, map[string]string{"task": "question-and-answering", "language": "en"}, m.Tags)
	assert.Contains(t, m.Template, "{{ question }}")
	assert.Len(t, m.Options(), 2)
}

func TestParseBytes_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{"malformed yaml", "name: [unclosed"},
		{"missing template", "name: finance-bot\n"},
		{"blank template", "name: finance-bot\ntemplate: '   '\n"},
		{"bad name", "name: a/b\ntemplate: x\n"},
		{"reserved alias", "name: a\ntemplate: x\nalias: latest\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBytes([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, promptreg.ErrInvalidManifest)
		})
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("template: hello\n"), 0600))
	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Template)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDir_SortedAndFiltered(t *testing.T) {
	t.Parallel()
	ms, err := LoadDir(testdataFS, "testdata/prompts")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "You are a helper.", ms[0].Template)
	assert.Equal(t, "First prompt", ms[0].CommitMessage)
	assert.Equal(t, "You are a finance specialist.", ms[1].Template)
	assert.Equal(t, "Production", ms[1].Alias)
}

func TestLoadDir_MissingRoot(t *testing.T) {
	t.Parallel()
	_, err := LoadDir(testdataFS, "testdata/nope")
	require.Error(t, err)
}
