// Package cachestore wraps a promptreg store with a read cache for loaded versions.
//
// Loads by version and by alias are cached per prompt with a TTL; concurrent misses
// for the same key share one registry call. Writes made through the Store (new
// versions, alias changes, tag changes) evict every entry of the prompt they touch.
// Changes made by other registry clients become visible when entries expire.
package cachestore

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/skosovsky/promptreg"

	"golang.org/x/sync/singleflight"
)

const defaultTTL = 5 * time.Minute

type cacheEntry struct {
	tpl       *promptreg.Template
	expiresAt time.Time
}

// Store caches GetVersion and GetByAlias of an inner store. It implements
// promptreg.Store and forwards the optional capabilities when the inner store has them.
type Store struct {
	inner promptreg.Store
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	cache map[string]map[string]*cacheEntry
	// gen changes on every eviction. Loads started under an older gen neither share a
	// flight with newer loads nor fill the cache.
	gen uint64
	sf  singleflight.Group
}

// Option configures a Store (functional options pattern).
type Option func(*Store)

// WithTTL sets how long loaded templates are served from cache. Default is 5 minutes.
// TTL <= 0 means entries never expire.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// WithClock sets the time source used for expiry. Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps inner. Panics if inner is nil.
func New(inner promptreg.Store, opts ...Option) *Store {
	if inner == nil {
		panic("cachestore: inner Store must not be nil")
	}
	s := &Store{
		inner: inner,
		ttl:   defaultTTL,
		now:   time.Now,
		cache: make(map[string]map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetVersion returns version of name, from cache when fresh.
func (s *Store) GetVersion(ctx context.Context, name string, version int) (*promptreg.Template, error) {
	return s.load(ctx, name, "/"+strconv.Itoa(version), func(ctx context.Context) (*promptreg.Template, error) {
		return s.inner.GetVersion(ctx, name, version)
	})
}

// GetByAlias returns the version alias points at, from cache when fresh.
func (s *Store) GetByAlias(ctx context.Context, name, alias string) (*promptreg.Template, error) {
	return s.load(ctx, name, "@"+alias, func(ctx context.Context) (*promptreg.Template, error) {
		return s.inner.GetByAlias(ctx, name, alias)
	})
}

func (s *Store) load(ctx context.Context, name, key string, fetch func(context.Context) (*promptreg.Template, error)) (*promptreg.Template, error) {
	s.mu.RLock()
	if tpl, ok := s.lookup(name, key); ok {
		s.mu.RUnlock()
		return tpl, nil
	}
	gen := s.gen
	s.mu.RUnlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	flight := name + key + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := s.sf.Do(flight, func() (any, error) {
		fetchCtx, cancel := detachCancel(ctx)
		defer cancel()
		return fetch(fetchCtx)
	})
	if err != nil {
		return nil, err
	}
	tpl := v.(*promptreg.Template)

	s.mu.Lock()
	if s.gen == gen {
		entries := s.cache[name]
		if entries == nil {
			entries = make(map[string]*cacheEntry)
			s.cache[name] = entries
		}
		var expiresAt time.Time
		if s.ttl > 0 {
			expiresAt = s.now().Add(s.ttl)
		}
		entries[key] = &cacheEntry{tpl: promptreg.CloneTemplate(tpl), expiresAt: expiresAt}
	}
	s.mu.Unlock()
	return promptreg.CloneTemplate(tpl), nil
}

// lookup returns a clone of a fresh entry. Callers hold s.mu.
func (s *Store) lookup(name, key string) (*promptreg.Template, bool) {
	ent, ok := s.cache[name][key]
	if !ok || (s.ttl > 0 && !s.now().Before(ent.expiresAt)) {
		return nil, false
	}
	return promptreg.CloneTemplate(ent.tpl), true
}

// CreateVersion forwards to the inner store and evicts name.
func (s *Store) CreateVersion(ctx context.Context, req promptreg.VersionRequest) (*promptreg.Template, error) {
	defer s.Evict(req.Name)
	return s.inner.CreateVersion(ctx, req)
}

// SetAlias forwards to the inner store and evicts name.
func (s *Store) SetAlias(ctx context.Context, name, alias string, version int) error {
	defer s.Evict(name)
	return s.inner.SetAlias(ctx, name, alias, version)
}

// ListVersions is not cached.
func (s *Store) ListVersions(ctx context.Context, name string) ([]*promptreg.Template, error) {
	lister, ok := s.inner.(promptreg.VersionLister)
	if !ok {
		return nil, fmt.Errorf("%w: list versions", promptreg.ErrUnsupported)
	}
	return lister.ListVersions(ctx, name)
}

// DeleteAlias forwards to the inner store and evicts name.
func (s *Store) DeleteAlias(ctx context.Context, name, alias string) error {
	deleter, ok := s.inner.(promptreg.AliasDeleter)
	if !ok {
		return fmt.Errorf("%w: delete alias", promptreg.ErrUnsupported)
	}
	defer s.Evict(name)
	return deleter.DeleteAlias(ctx, name, alias)
}

// CreatePrompt forwards to the inner store.
func (s *Store) CreatePrompt(ctx context.Context, name string, tags map[string]string) error {
	pm, ok := s.inner.(promptreg.PromptManager)
	if !ok {
		return fmt.Errorf("%w: create prompt", promptreg.ErrUnsupported)
	}
	defer s.Evict(name)
	return pm.CreatePrompt(ctx, name, tags)
}

// GetPrompt is not cached.
func (s *Store) GetPrompt(ctx context.Context, name string) (*promptreg.Prompt, error) {
	pm, ok := s.inner.(promptreg.PromptManager)
	if !ok {
		return nil, fmt.Errorf("%w: get prompt", promptreg.ErrUnsupported)
	}
	return pm.GetPrompt(ctx, name)
}

// SetPromptTag forwards to the inner store and evicts name.
func (s *Store) SetPromptTag(ctx context.Context, name, key, value string) error {
	pm, ok := s.inner.(promptreg.PromptManager)
	if !ok {
		return fmt.Errorf("%w: set prompt tag", promptreg.ErrUnsupported)
	}
	defer s.Evict(name)
	return pm.SetPromptTag(ctx, name, key, value)
}

// Evict drops every cached entry of name and discards loads still in flight.
// Safe for concurrent use.
func (s *Store) Evict(name string) {
	s.mu.Lock()
	s.gen++
	delete(s.cache, name)
	s.mu.Unlock()
}

// EvictAll clears the entire cache. Safe for concurrent use.
func (s *Store) EvictAll() {
	s.mu.Lock()
	s.gen++
	s.cache = make(map[string]map[string]*cacheEntry)
	s.mu.Unlock()
}

// Close calls Close on the inner store if it implements io.Closer.
func (s *Store) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// detachCancel returns a context that outlives parent's cancellation but keeps its
// deadline, so a load shared through singleflight is not aborted by one caller leaving.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}

var (
	_ promptreg.Store         = (*Store)(nil)
	_ promptreg.VersionLister = (*Store)(nil)
	_ promptreg.AliasDeleter  = (*Store)(nil)
	_ promptreg.PromptManager = (*Store)(nil)
	_ io.Closer               = (*Store)(nil)
)
