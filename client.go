package promptreg

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"

	"go.uber.org/zap"
)

// Client registers, aliases and loads prompt templates through a Store.
// It keeps no state besides its configuration; every call is one round trip.
type Client struct {
	store       Store
	logger      *zap.Logger
	defaultTags map[string]string
}

// New creates a Client forwarding to store. Tags default to DefaultTags().
// Panics if store is nil.
func New(store Store, opts ...ClientOption) *Client {
	if store == nil {
		panic("promptreg: Store must not be nil")
	}
	c := &Client{
		store:       store,
		logger:      zap.NewNop(),
		defaultTags: DefaultTags(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates a new immutable version of name with the given body.
// The registry assigns the version number. Returns an error wrapping ErrInvalidTemplate
// for an empty body or unusable name; registry failures propagate unchanged.
func (c *Client) Register(ctx context.Context, name, body string, opts ...RegisterOption) (*Template, error) {
	if err := ValidateName(name); err != nil {
		return nil, &OpError{Op: "register", Name: name, Err: fmt.Errorf("%w: %w", ErrInvalidTemplate, err)}
	}
	if strings.TrimSpace(body) == "" {
		return nil, &OpError{Op: "register", Name: name, Err: fmt.Errorf("%w: empty body", ErrInvalidTemplate)}
	}
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	tags := c.defaultTags
	if o.tagsSet {
		tags = o.tags
	}
	c.logger.Debug("registering prompt",
		zap.String("name", name),
		zap.Int("body_len", len(body)),
		zap.Bool("commit_message", o.commitMessage != ""))
	tpl, err := c.store.CreateVersion(ctx, VersionRequest{
		Name:          name,
		Body:          body,
		CommitMessage: o.commitMessage,
		Tags:          maps.Clone(tags),
	})
	if err != nil {
		return nil, &OpError{Op: "register", Name: name, Err: err}
	}
	c.logger.Info("created prompt", zap.String("name", tpl.Name), zap.Int("version", tpl.Version))
	return tpl, nil
}

// SetAlias points alias at version of name, replacing any previous target.
// Returns an error wrapping ErrVersionNotFound if the version does not exist.
func (c *Client) SetAlias(ctx context.Context, name string, version int, alias string) (*Alias, error) {
	sel := ByVersion(version)
	if err := ValidateName(name); err != nil {
		return nil, &OpError{Op: "set alias", Name: name, Selector: sel, Err: err}
	}
	if err := ValidateAlias(alias); err != nil {
		return nil, &OpError{Op: "set alias", Name: name, Selector: sel, Err: err}
	}
	if version < 1 {
		return nil, &OpError{Op: "set alias", Name: name, Selector: sel, Err: ErrVersionNotFound}
	}
	c.logger.Info("adding alias",
		zap.String("name", name),
		zap.String("alias", alias),
		zap.Int("version", version))
	if err := c.store.SetAlias(ctx, name, alias, version); err != nil {
		return nil, &OpError{Op: "set alias", Name: name, Selector: sel, Err: err}
	}
	return &Alias{Name: name, Alias: alias, Version: version}, nil
}

// Load fetches the version of name chosen by sel.
// Returns an error wrapping ErrNotFound if nothing matches.
func (c *Client) Load(ctx context.Context, name string, sel Selector) (*Template, error) {
	if err := ValidateName(name); err != nil {
		return nil, &OpError{Op: "load", Name: name, Selector: sel, Err: err}
	}
	var (
		tpl *Template
		err error
	)
	switch s := sel.(type) {
	case VersionSelector:
		if s < 1 {
			return nil, &OpError{Op: "load", Name: name, Selector: sel, Err: ErrNotFound}
		}
		tpl, err = c.store.GetVersion(ctx, name, int(s))
	case AliasSelector:
		if s == "" {
			return nil, &OpError{Op: "load", Name: name, Selector: sel, Err: ErrInvalidAlias}
		}
		tpl, err = c.store.GetByAlias(ctx, name, string(s))
	default:
		return nil, &OpError{Op: "load", Name: name, Err: fmt.Errorf("%w: unsupported selector %T", ErrNotFound, sel)}
	}
	if err != nil {
		return nil, &OpError{Op: "load", Name: name, Selector: sel, Err: err}
	}
	c.logger.Debug("loaded prompt",
		zap.String("name", tpl.Name),
		zap.Int("version", tpl.Version),
		zap.Stringer("selector", sel))
	return tpl, nil
}

// LoadURI loads a prompts:/name/version or prompts:/name@alias reference.
func (c *Client) LoadURI(ctx context.Context, uri string) (*Template, error) {
	name, sel, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return c.Load(ctx, name, sel)
}

// Versions lists every version of name in ascending order.
// Returns ErrUnsupported if the store cannot list versions.
func (c *Client) Versions(ctx context.Context, name string) ([]*Template, error) {
	if err := ValidateName(name); err != nil {
		return nil, &OpError{Op: "list versions", Name: name, Err: err}
	}
	lister, ok := c.store.(VersionLister)
	if !ok {
		return nil, &OpError{Op: "list versions", Name: name, Err: ErrUnsupported}
	}
	out, err := lister.ListVersions(ctx, name)
	if err != nil {
		return nil, &OpError{Op: "list versions", Name: name, Err: err}
	}
	return out, nil
}

// Prompt returns the name-level record of name: tags and alias targets.
// Returns ErrUnsupported if the store does not expose prompt records.
func (c *Client) Prompt(ctx context.Context, name string) (*Prompt, error) {
	if err := ValidateName(name); err != nil {
		return nil, &OpError{Op: "describe", Name: name, Err: err}
	}
	pm, ok := c.store.(PromptManager)
	if !ok {
		return nil, &OpError{Op: "describe", Name: name, Err: ErrUnsupported}
	}
	p, err := pm.GetPrompt(ctx, name)
	if err != nil {
		return nil, &OpError{Op: "describe", Name: name, Err: err}
	}
	return p, nil
}

// DeleteAlias removes alias from name. The version it pointed at is untouched.
// Returns ErrUnsupported if the store cannot delete aliases.
func (c *Client) DeleteAlias(ctx context.Context, name, alias string) error {
	sel := ByAlias(alias)
	if err := ValidateName(name); err != nil {
		return &OpError{Op: "delete alias", Name: name, Selector: sel, Err: err}
	}
	deleter, ok := c.store.(AliasDeleter)
	if !ok {
		return &OpError{Op: "delete alias", Name: name, Selector: sel, Err: ErrUnsupported}
	}
	if err := deleter.DeleteAlias(ctx, name, alias); err != nil {
		return &OpError{Op: "delete alias", Name: name, Selector: sel, Err: err}
	}
	c.logger.Info("deleted alias", zap.String("name", name), zap.String("alias", alias))
	return nil
}

// Close calls Close on the underlying Store if it implements io.Closer.
func (c *Client) Close() error {
	if cl, ok := c.store.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
