// Package memstore provides an in-memory promptreg.Store with registry semantics:
// per-name monotonically increasing versions, immutable bodies, name-level tags and
// repointable aliases. Safe for concurrent use. Use NewFromFS to seed it from YAML
// manifests (e.g. an embed.FS).
package memstore

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/manifest"
)

// Ensures Store implements the promptreg capability interfaces.
var (
	_ promptreg.Store         = (*Store)(nil)
	_ promptreg.VersionLister = (*Store)(nil)
	_ promptreg.AliasDeleter  = (*Store)(nil)
	_ promptreg.PromptManager = (*Store)(nil)
)

type version struct {
	body          string
	commitMessage string
	createdAt     time.Time
}

type prompt struct {
	createdAt time.Time
	tags      map[string]string
	versions  []version // versions[i] is version i+1
	aliases   map[string]int
}

// Store keeps prompts in memory.
type Store struct {
	mu      sync.RWMutex
	prompts map[string]*prompt
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for CreatedAt. Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		prompts: make(map[string]*prompt),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromFS creates a Store and registers every manifest under root in lexical order.
// Manifests must carry a name; an alias in a manifest points at the version it created.
func NewFromFS(fsys fs.FS, root string, opts ...Option) (*Store, error) {
	ms, err := manifest.LoadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	s := New(opts...)
	ctx := context.Background()
	for i, m := range ms {
		if m.Name == "" {
			return nil, fmt.Errorf("%w: manifest %d has no name", promptreg.ErrInvalidManifest, i)
		}
		tpl, err := s.CreateVersion(ctx, promptreg.VersionRequest{
			Name:          m.Name,
			Body:          m.Template,
			CommitMessage: m.CommitMessage,
			Tags:          m.Tags,
		})
		if err != nil {
			return nil, err
		}
		if m.Alias != "" {
			if err := s.SetAlias(ctx, m.Name, m.Alias, tpl.Version); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// CreateVersion appends a new version to req.Name, creating the prompt if needed.
// Non-empty req.Tags are merged into the prompt's tags.
func (s *Store) CreateVersion(ctx context.Context, req promptreg.VersionRequest) (*promptreg.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := promptreg.ValidateName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %w", promptreg.ErrInvalidTemplate, err)
	}
	if req.Body == "" {
		return nil, fmt.Errorf("%w: empty body", promptreg.ErrInvalidTemplate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[req.Name]
	if !ok {
		p = s.newPrompt()
		s.prompts[req.Name] = p
	}
	maps.Copy(p.tags, req.Tags)
	p.versions = append(p.versions, version{
		body:          req.Body,
		commitMessage: req.CommitMessage,
		createdAt:     s.now(),
	})
	return p.template(req.Name, len(p.versions)), nil
}

// SetAlias points alias at version. Returns ErrVersionNotFound if the version does not exist.
func (s *Store) SetAlias(ctx context.Context, name, alias string, ver int) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[name]
	if !ok || ver < 1 || ver > len(p.versions) {
		return fmt.Errorf("%w: %s version %d", promptreg.ErrVersionNotFound, name, ver)
	}
	p.aliases[alias] = ver
	return nil
}

// GetVersion returns one version. Returns ErrNotFound if name or version is unknown.
func (s *Store) GetVersion(ctx context.Context, name string, ver int) (*promptreg.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	if !ok || ver < 1 || ver > len(p.versions) {
		return nil, fmt.Errorf("%w: %s version %d", promptreg.ErrNotFound, name, ver)
	}
	return p.template(name, ver), nil
}

// GetByAlias returns the version alias points at. Returns ErrNotFound if unset.
func (s *Store) GetByAlias(ctx context.Context, name, alias string) (*promptreg.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", promptreg.ErrNotFound, name)
	}
	ver, ok := p.aliases[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", promptreg.ErrNotFound, name, alias)
	}
	return p.template(name, ver), nil
}

// ListVersions returns all versions of name, oldest first.
func (s *Store) ListVersions(ctx context.Context, name string) ([]*promptreg.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", promptreg.ErrNotFound, name)
	}
	out := make([]*promptreg.Template, 0, len(p.versions))
	for i := range p.versions {
		out = append(out, p.template(name, i+1))
	}
	return out, nil
}

// DeleteAlias removes alias. Returns ErrNotFound if it is not set.
func (s *Store) DeleteAlias(ctx context.Context, name, alias string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[name]
	if !ok {
		return fmt.Errorf("%w: %s", promptreg.ErrNotFound, name)
	}
	if _, ok := p.aliases[alias]; !ok {
		return fmt.Errorf("%w: %s@%s", promptreg.ErrNotFound, name, alias)
	}
	delete(p.aliases, alias)
	return nil
}

// CreatePrompt creates a prompt with no versions. Returns ErrAlreadyExists if name exists.
func (s *Store) CreatePrompt(ctx context.Context, name string, tags map[string]string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := promptreg.ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prompts[name]; ok {
		return fmt.Errorf("%w: %s", promptreg.ErrAlreadyExists, name)
	}
	p := s.newPrompt()
	maps.Copy(p.tags, tags)
	s.prompts[name] = p
	return nil
}

// GetPrompt returns the name-level record. Returns ErrNotFound if name is unknown.
func (s *Store) GetPrompt(ctx context.Context, name string) (*promptreg.Prompt, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", promptreg.ErrNotFound, name)
	}
	return &promptreg.Prompt{
		Name:      name,
		Tags:      maps.Clone(p.tags),
		Aliases:   maps.Clone(p.aliases),
		CreatedAt: p.createdAt,
	}, nil
}

// SetPromptTag sets one name-level tag. Returns ErrNotFound if name is unknown.
func (s *Store) SetPromptTag(ctx context.Context, name, key, value string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[name]
	if !ok {
		return fmt.Errorf("%w: %s", promptreg.ErrNotFound, name)
	}
	p.tags[key] = value
	return nil
}

// newPrompt allocates an empty prompt. Caller holds s.mu.
func (s *Store) newPrompt() *prompt {
	return &prompt{
		createdAt: s.now(),
		tags:      make(map[string]string),
		aliases:   make(map[string]int),
	}
}

// template builds a detached Template for version ver. Caller holds s.mu.
func (p *prompt) template(name string, ver int) *promptreg.Template {
	v := p.versions[ver-1]
	var aliases []string
	for a, target := range p.aliases {
		if target == ver {
			aliases = append(aliases, a)
		}
	}
	slices.Sort(aliases)
	return &promptreg.Template{
		Name:          name,
		Version:       ver,
		Body:          v.body,
		CommitMessage: v.commitMessage,
		Tags:          maps.Clone(p.tags),
		Aliases:       aliases,
		CreatedAt:     v.createdAt,
	}
}
