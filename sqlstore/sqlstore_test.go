package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) promptreg.Store { return openMemory(t) })
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prompts.db")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s, err := Open(ctx, path, WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	_, err = s.CreateVersion(ctx, promptreg.VersionRequest{
		Name:          "finance-bot",
		Body:          "You are a helper.",
		CommitMessage: "First prompt",
		Tags:          promptreg.DefaultTags(),
	})
	require.NoError(t, err)
	require.NoError(t, s.SetAlias(ctx, "finance-bot", "Production", 1))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	tpl, err := s.GetByAlias(ctx, "finance-bot", "Production")
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Version)
	assert.Equal(t, "You are a helper.", tpl.Body)
	assert.Equal(t, "First prompt", tpl.CommitMessage)
	assert.Equal(t, promptreg.DefaultTags(), tpl.Tags)
	assert.Equal(t, []string{"Production"}, tpl.Aliases)
	assert.Equal(t, at, tpl.CreatedAt)

	next, err := s.CreateVersion(ctx, promptreg.VersionRequest{Name: "finance-bot", Body: "v2"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
}

func TestStore_RejectsEmptyBody(t *testing.T) {
	t.Parallel()
	_, err := openMemory(t).CreateVersion(context.Background(), promptreg.VersionRequest{Name: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrInvalidTemplate)
}

func TestStore_ListVersionsUnknown(t *testing.T) {
	t.Parallel()
	_, err := openMemory(t).ListVersions(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrNotFound)
}

func TestOpen_PathWithURICharacters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "team?a#1%.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.CreateVersion(ctx, promptreg.VersionRequest{Name: "p", Body: "body"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "database is created at the literal path")

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	tpl, err := s.GetVersion(ctx, "p", 1)
	require.NoError(t, err)
	assert.Equal(t, "body", tpl.Body)
}

func TestOpen_MemoryEnforcesForeignKeys(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO prompt_aliases (name, alias, version) VALUES ('ghost', 'Production', 1)`)
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want string
	}{
		{":memory:", "file::memory:" + pragmas},
		{"prompts.db", "file:prompts.db" + pragmas},
		{"/var/lib/a?b#c%d.db", "file:/var/lib/a%3Fb%23c%25d.db" + pragmas},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dsn(tt.path), tt.path)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestPathFromURI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"sqlite:///mlflow.db", "mlflow.db", false},
		{"sqlite:////var/lib/prompts.db", "/var/lib/prompts.db", false},
		{"sqlite:///:memory:", ":memory:", false},
		{"sqlite:///", "", true},
		{"https://example.com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			t.Parallel()
			got, err := PathFromURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, promptreg.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
