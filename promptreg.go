package promptreg

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Template is one immutable version of a named prompt.
type Template struct {
	Name          string
	Version       int // assigned by the registry
	Body          string
	CommitMessage string
	Tags          map[string]string // name-level, shared by every version
	Aliases       []string          // aliases pointing at this version, when the store reports them
	CreatedAt     time.Time
}

// URI returns the prompts:/name/version reference for t.
func (t *Template) URI() string {
	return URI(t.Name, ByVersion(t.Version))
}

// Alias is a mutable pointer from (Name, Alias) to a single Version.
type Alias struct {
	Name    string
	Alias   string
	Version int
}

// Selector picks one version of a prompt: either by number or through an alias.
// Only VersionSelector and AliasSelector implement it.
type Selector interface {
	fmt.Stringer
	isSelector()
}

// VersionSelector selects a version by number.
type VersionSelector int

func (VersionSelector) isSelector() {}

func (v VersionSelector) String() string { return fmt.Sprintf("version %d", int(v)) }

// AliasSelector selects the version an alias currently points at.
type AliasSelector string

func (AliasSelector) isSelector() {}

func (a AliasSelector) String() string { return fmt.Sprintf("alias %q", string(a)) }

// ByVersion returns a selector for version n.
func ByVersion(n int) Selector { return VersionSelector(n) }

// ByAlias returns a selector for the given alias.
func ByAlias(alias string) Selector { return AliasSelector(alias) }

// VersionRequest is what a Store needs to create a new version.
type VersionRequest struct {
	Name          string
	Body          string
	CommitMessage string
	Tags          map[string]string
}

// Store is the registry capability the Client forwards to.
//
// Implementations return errors wrapping the package sentinels: ErrNotFound when a
// name, version or alias does not resolve on read, ErrVersionNotFound when SetAlias
// targets a missing version, ErrInvalidTemplate when content is rejected and
// ErrRegistryUnavailable when the backend cannot be reached.
type Store interface {
	CreateVersion(ctx context.Context, req VersionRequest) (*Template, error)
	SetAlias(ctx context.Context, name, alias string, version int) error
	GetVersion(ctx context.Context, name string, version int) (*Template, error)
	GetByAlias(ctx context.Context, name, alias string) (*Template, error)
}

// VersionLister is optional. When implemented by a Store, Client.Versions uses it.
type VersionLister interface {
	ListVersions(ctx context.Context, name string) ([]*Template, error)
}

// Prompt is the name-level record shared by every version: tags and alias pointers.
type Prompt struct {
	Name      string
	Tags      map[string]string
	Aliases   map[string]int // alias -> version
	CreatedAt time.Time
}

// PromptManager is optional. Stores that expose the name-level record implement it;
// the MLflow server handler requires it.
//
// CreatePrompt returns ErrAlreadyExists if name exists. GetPrompt and SetPromptTag
// return ErrNotFound for unknown names.
type PromptManager interface {
	CreatePrompt(ctx context.Context, name string, tags map[string]string) error
	GetPrompt(ctx context.Context, name string) (*Prompt, error)
	SetPromptTag(ctx context.Context, name, key, value string) error
}

// AliasDeleter is optional. When implemented by a Store, Client.DeleteAlias uses it.
type AliasDeleter interface {
	DeleteAlias(ctx context.Context, name, alias string) error
}

// CloneTemplate returns a copy of t with cloned map and slice fields.
// Stores use this so callers cannot mutate stored state.
func CloneTemplate(t *Template) *Template {
	if t == nil {
		return nil
	}
	out := *t
	if t.Tags != nil {
		out.Tags = maps.Clone(t.Tags)
	}
	out.Aliases = slices.Clone(t.Aliases)
	return &out
}
