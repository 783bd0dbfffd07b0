// Package storetest provides a conformance suite for promptreg.Store implementations.
// Run it from a backend's tests with a constructor that returns an empty store.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/skosovsky/promptreg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty Store. Cleanup should be registered on t.
type Factory func(t *testing.T) promptreg.Store

// Run exercises the registry contract through a promptreg.Client over stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, c *promptreg.Client)
	}{
		{"MonotonicVersions", testMonotonicVersions},
		{"VersionsPerName", testVersionsPerName},
		{"RoundTrip", testRoundTrip},
		{"Immutability", testImmutability},
		{"AliasResolution", testAliasResolution},
		{"AliasReassignment", testAliasReassignment},
		{"AliasMissingVersion", testAliasMissingVersion},
		{"NotFound", testNotFound},
		{"NameLevelTags", testNameLevelTags},
		{"OptionalCapabilities", testOptionalCapabilities},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := promptreg.New(newStore(t))
			tt.fn(t, c)
		})
	}
	t.Run("PromptRecord", func(t *testing.T) {
		t.Parallel()
		pm, ok := newStore(t).(promptreg.PromptManager)
		if !ok {
			t.Skip("store does not manage prompt records")
		}
		testPromptRecord(t, pm)
	})
}

func testMonotonicVersions(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	prev := 0
	for i := range 5 {
		tpl, err := c.Register(ctx, "finance-bot", "body", promptreg.WithCommitMessage("step"))
		require.NoError(t, err, "register %d", i)
		assert.Greater(t, tpl.Version, prev)
		assert.Equal(t, prev+1, tpl.Version)
		prev = tpl.Version
	}
}

func testVersionsPerName(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	_, err := c.Register(ctx, "alpha", "a1")
	require.NoError(t, err)
	_, err = c.Register(ctx, "alpha", "a2")
	require.NoError(t, err)
	beta, err := c.Register(ctx, "beta", "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, beta.Version)
}

func testRoundTrip(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	body := "\n        <|begin_of_text|>\n        <|start_header_id|>system<|end_header_id|>\n" +
		"        Context: {context}\n\n        Question: {question} · ünïcode {{ var }}\n" +
		"        Answer:"
	reg, err := c.Register(ctx, "round-trip", body, promptreg.WithCommitMessage("Llama 3 format"))
	require.NoError(t, err)
	assert.Equal(t, "round-trip", reg.Name)
	assert.Equal(t, body, reg.Body)

	got, err := c.Load(ctx, "round-trip", promptreg.ByVersion(reg.Version))
	require.NoError(t, err)
	assert.Equal(t, body, got.Body)
	assert.Equal(t, reg.Version, got.Version)
	assert.Equal(t, "Llama 3 format", got.CommitMessage)

	plain, err := c.Register(ctx, "round-trip", "no annotation")
	require.NoError(t, err)
	got, err = c.Load(ctx, "round-trip", promptreg.ByVersion(plain.Version))
	require.NoError(t, err)
	assert.Empty(t, got.CommitMessage)
}

func testImmutability(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	v1, err := c.Register(ctx, "finance-bot", "You are a helper.")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	v2, err := c.Register(ctx, "finance-bot", "You are a finance specialist.")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	got, err := c.Load(ctx, "finance-bot", promptreg.ByVersion(1))
	require.NoError(t, err)
	assert.Equal(t, "You are a helper.", got.Body)

	got.Body = "mutated by caller"
	again, err := c.Load(ctx, "finance-bot", promptreg.ByVersion(1))
	require.NoError(t, err)
	assert.Equal(t, "You are a helper.", again.Body)
}

func testAliasResolution(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	_, err := c.Register(ctx, "finance-bot", "You are a helper.")
	require.NoError(t, err)
	v2, err := c.Register(ctx, "finance-bot", "You are a finance specialist.")
	require.NoError(t, err)

	alias, err := c.SetAlias(ctx, "finance-bot", v2.Version, "Production")
	require.NoError(t, err)
	assert.Equal(t, promptreg.Alias{Name: "finance-bot", Alias: "Production", Version: 2}, *alias)

	got, err := c.Load(ctx, "finance-bot", promptreg.ByAlias("Production"))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "You are a finance specialist.", got.Body)

	byURI, err := c.LoadURI(ctx, "prompts:/finance-bot@Production")
	require.NoError(t, err)
	assert.Equal(t, got.Body, byURI.Body)
}

func testAliasReassignment(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	v1, err := c.Register(ctx, "p", "first")
	require.NoError(t, err)
	v2, err := c.Register(ctx, "p", "second")
	require.NoError(t, err)

	_, err = c.SetAlias(ctx, "p", v1.Version, "X")
	require.NoError(t, err)
	got, err := c.Load(ctx, "p", promptreg.ByAlias("X"))
	require.NoError(t, err)
	assert.Equal(t, v1.Version, got.Version)

	_, err = c.SetAlias(ctx, "p", v2.Version, "X")
	require.NoError(t, err)
	got, err = c.Load(ctx, "p", promptreg.ByAlias("X"))
	require.NoError(t, err)
	assert.Equal(t, v2.Version, got.Version)
	assert.Equal(t, "second", got.Body)
}

func testAliasMissingVersion(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	_, err := c.SetAlias(ctx, "ghost", 1, "Production")
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrVersionNotFound)

	_, err = c.Register(ctx, "p", "only")
	require.NoError(t, err)
	_, err = c.SetAlias(ctx, "p", 7, "Production")
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrVersionNotFound)
}

func testNotFound(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	_, err := c.Register(ctx, "finance-bot", "You are a helper.")
	require.NoError(t, err)

	_, err = c.Load(ctx, "finance-bot", promptreg.ByVersion(99))
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrNotFound)

	_, err = c.Load(ctx, "never-registered", promptreg.ByVersion(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrNotFound)

	_, err = c.Load(ctx, "finance-bot", promptreg.ByAlias("Staging"))
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrNotFound)

	var opErr *promptreg.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "load", opErr.Op)
	assert.Equal(t, "finance-bot", opErr.Name)
}

func testNameLevelTags(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	_, err := c.Register(ctx, "tagged", "v1")
	require.NoError(t, err)
	_, err = c.Register(ctx, "tagged", "v2", promptreg.WithTags(map[string]string{"owner": "risk"}))
	require.NoError(t, err)

	got, err := c.Load(ctx, "tagged", promptreg.ByVersion(1))
	require.NoError(t, err)
	for k, v := range promptreg.DefaultTags() {
		assert.Equal(t, v, got.Tags[k], "default tag %s", k)
	}
	assert.Equal(t, "risk", got.Tags["owner"], "tags are shared across versions")
}

func testOptionalCapabilities(t *testing.T, c *promptreg.Client) {
	ctx := context.Background()
	for _, body := range []string{"one", "two", "three"} {
		_, err := c.Register(ctx, "listed", body)
		require.NoError(t, err)
	}
	versions, err := c.Versions(ctx, "listed")
	if errors.Is(err, promptreg.ErrUnsupported) {
		t.Log("store does not list versions")
	} else {
		require.NoError(t, err)
		require.Len(t, versions, 3)
		for i, v := range versions {
			assert.Equal(t, i+1, v.Version)
		}
		assert.Equal(t, "three", versions[2].Body)
	}

	_, err = c.SetAlias(ctx, "listed", 2, "Candidate")
	require.NoError(t, err)
	err = c.DeleteAlias(ctx, "listed", "Candidate")
	if errors.Is(err, promptreg.ErrUnsupported) {
		t.Log("store does not delete aliases")
		return
	}
	require.NoError(t, err)
	_, err = c.Load(ctx, "listed", promptreg.ByAlias("Candidate"))
	assert.ErrorIs(t, err, promptreg.ErrNotFound)
	kept, err := c.Load(ctx, "listed", promptreg.ByVersion(2))
	require.NoError(t, err)
	assert.Equal(t, "two", kept.Body)
}

func testPromptRecord(t *testing.T, pm promptreg.PromptManager) {
	ctx := context.Background()
	require.NoError(t, pm.CreatePrompt(ctx, "record", map[string]string{"task": "qa"}))
	err := pm.CreatePrompt(ctx, "record", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrAlreadyExists)

	require.NoError(t, pm.SetPromptTag(ctx, "record", "owner", "risk"))
	require.NoError(t, pm.SetPromptTag(ctx, "record", "task", "summarize"))
	p, err := pm.GetPrompt(ctx, "record")
	require.NoError(t, err)
	assert.Equal(t, "record", p.Name)
	assert.Equal(t, "summarize", p.Tags["task"])
	assert.Equal(t, "risk", p.Tags["owner"])
	assert.Empty(t, p.Aliases)

	if lister, ok := pm.(promptreg.VersionLister); ok {
		versions, err := lister.ListVersions(ctx, "record")
		require.NoError(t, err)
		assert.Empty(t, versions)
	}

	_, err = pm.GetPrompt(ctx, "ghost")
	assert.ErrorIs(t, err, promptreg.ErrNotFound)
	err = pm.SetPromptTag(ctx, "ghost", "k", "v")
	assert.ErrorIs(t, err, promptreg.ErrNotFound)

	if s, ok := pm.(promptreg.Store); ok {
		c := promptreg.New(s)
		v1, err := c.Register(ctx, "record", "first")
		require.NoError(t, err)
		assert.Equal(t, 1, v1.Version)
		_, err = c.SetAlias(ctx, "record", 1, "Production")
		require.NoError(t, err)
		p, err = pm.GetPrompt(ctx, "record")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"Production": 1}, p.Aliases)
	}
}
