package promptreg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubStore implements only Store and records what the client sent.
type stubStore struct {
	req      VersionRequest
	calls    int
	err      error
	aliasErr error
	alias    [3]any
	closed   bool
}

func (s *stubStore) CreateVersion(_ context.Context, req VersionRequest) (*Template, error) {
	s.calls++
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &Template{Name: req.Name, Version: s.calls, Body: req.Body, CommitMessage: req.CommitMessage, Tags: req.Tags}, nil
}

func (s *stubStore) SetAlias(_ context.Context, name, alias string, version int) error {
	s.alias = [3]any{name, alias, version}
	return s.aliasErr
}

func (s *stubStore) GetVersion(_ context.Context, name string, version int) (*Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Template{Name: name, Version: version, Body: "v"}, nil
}

func (s *stubStore) GetByAlias(_ context.Context, name, _ string) (*Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Template{Name: name, Version: 2, Body: "by alias"}, nil
}

type closingStub struct {
	stubStore
}

func (c *closingStub) Close() error {
	c.closed = true
	return errors.New("close failed")
}

func TestNew_PanicsOnNilStore(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { New(nil) })
}

func TestClient_Register_DefaultTags(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	c := New(store)
	tpl, err := c.Register(context.Background(), "finance-bot", "You help with stocks.")
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Version)
	assert.Equal(t, DefaultTags(), store.req.Tags)
	assert.Empty(t, store.req.CommitMessage)

	store.req.Tags["task"] = "mutated"
	assert.Equal(t, "question-and-answering", DefaultTags()["task"])
	_, err = c.Register(context.Background(), "finance-bot", "again")
	require.NoError(t, err)
	assert.Equal(t, "question-and-answering", store.req.Tags["task"], "client defaults are not shared with the store")
}

func TestClient_Register_Options(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	c := New(store, WithDefaultTags(map[string]string{"team": "risk"}))

	_, err := c.Register(context.Background(), "p", "body", WithCommitMessage("First prompt"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"team": "risk"}, store.req.Tags)
	assert.Equal(t, "First prompt", store.req.CommitMessage)

	_, err = c.Register(context.Background(), "p", "body", WithTags(map[string]string{"BU": "x"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"BU": "x"}, store.req.Tags)

	_, err = c.Register(context.Background(), "p", "body", WithTags(nil))
	require.NoError(t, err)
	assert.Empty(t, store.req.Tags)
}

func TestClient_Register_Invalid(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	c := New(store)
	for _, tc := range []struct{ name, body string }{
		{"finance-bot", ""},
		{"finance-bot", " \n\t"},
		{"", "body"},
		{"a/b", "body"},
	} {
		_, err := c.Register(context.Background(), tc.name, tc.body)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidTemplate)
		var oe *OpError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, "register", oe.Op)
	}
	assert.Zero(t, store.calls, "invalid input never reaches the store")
}

func TestClient_Register_StoreError(t *testing.T) {
	t.Parallel()
	c := New(&stubStore{err: ErrRegistryUnavailable})
	_, err := c.Register(context.Background(), "p", "body")
	require.ErrorIs(t, err, ErrRegistryUnavailable)
}

func TestClient_SetAlias(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	c := New(store)
	al, err := c.SetAlias(context.Background(), "p", 2, "Production")
	require.NoError(t, err)
	assert.Equal(t, &Alias{Name: "p", Alias: "Production", Version: 2}, al)
	assert.Equal(t, [3]any{"p", "Production", 2}, store.alias)

	_, err = c.SetAlias(context.Background(), "p", 0, "Production")
	require.ErrorIs(t, err, ErrVersionNotFound)
	_, err = c.SetAlias(context.Background(), "p", 1, "latest")
	require.ErrorIs(t, err, ErrInvalidAlias)

	store.aliasErr = ErrVersionNotFound
	_, err = c.SetAlias(context.Background(), "p", 9, "Production")
	require.ErrorIs(t, err, ErrVersionNotFound)
}

func TestClient_Load(t *testing.T) {
	t.Parallel()
	c := New(&stubStore{})
	tpl, err := c.Load(context.Background(), "p", ByVersion(3))
	require.NoError(t, err)
	assert.Equal(t, 3, tpl.Version)

	tpl, err = c.Load(context.Background(), "p", ByAlias("Production"))
	require.NoError(t, err)
	assert.Equal(t, "by alias", tpl.Body)

	_, err = c.Load(context.Background(), "p", ByVersion(0))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.Load(context.Background(), "p", ByAlias(""))
	require.ErrorIs(t, err, ErrInvalidAlias)
	_, err = c.Load(context.Background(), "p", nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.LoadURI(context.Background(), "prompts:/p")
	require.ErrorIs(t, err, ErrInvalidURI)

	_, err = New(&stubStore{err: ErrNotFound}).Load(context.Background(), "p", ByVersion(99))
	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, ByVersion(99), oe.Selector)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_OptionalCapabilities_Unsupported(t *testing.T) {
	t.Parallel()
	c := New(&stubStore{})
	_, err := c.Versions(context.Background(), "p")
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = c.Prompt(context.Background(), "p")
	require.ErrorIs(t, err, ErrUnsupported)
	require.ErrorIs(t, c.DeleteAlias(context.Background(), "p", "Production"), ErrUnsupported)
	require.NoError(t, c.Close())
}

func TestClient_Close_ForwardsToStore(t *testing.T) {
	t.Parallel()
	store := &closingStub{}
	err := New(store).Close()
	require.EqualError(t, err, "close failed")
	assert.True(t, store.closed)
}

func TestClient_Logging(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	c := New(&stubStore{}, WithLogger(zap.New(core)), WithLogger(nil))
	_, err := c.Register(context.Background(), "finance-bot", "body")
	require.NoError(t, err)
	_, err = c.SetAlias(context.Background(), "finance-bot", 1, "Production")
	require.NoError(t, err)

	created := logs.FilterMessage("created prompt").All()
	require.Len(t, created, 1)
	assert.Equal(t, "finance-bot", created[0].ContextMap()["name"])
	assert.Equal(t, int64(1), created[0].ContextMap()["version"])
	assert.Equal(t, 1, logs.FilterMessage("adding alias").Len())
}
