// Package manifest parses YAML prompt manifests: one prompt version per file with its
// template text, optional commit message, tags and alias.
package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/skosovsky/promptreg"

	"gopkg.in/yaml.v3"
)

// Manifest describes one prompt version to register.
type Manifest struct {
	Name          string            `yaml:"name"`
	Template      string            `yaml:"template"`
	CommitMessage string            `yaml:"commit_message"`
	Tags          map[string]string `yaml:"tags"`
	Alias         string            `yaml:"alias"`
}

// ParseBytes parses a YAML manifest. The template must be non-empty; the name and
// alias, when present, must pass promptreg validation.
func ParseBytes(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", promptreg.ErrInvalidManifest, err)
	}
	if strings.TrimSpace(m.Template) == "" {
		return nil, fmt.Errorf("%w: missing template", promptreg.ErrInvalidManifest)
	}
	if m.Name != "" {
		if err := promptreg.ValidateName(m.Name); err != nil {
			return nil, fmt.Errorf("%w: %w", promptreg.ErrInvalidManifest, err)
		}
	}
	if m.Alias != "" {
		if err := promptreg.ValidateAlias(m.Alias); err != nil {
			return nil, fmt.Errorf("%w: %w", promptreg.ErrInvalidManifest, err)
		}
	}
	return &m, nil
}

// ParseFile reads and parses a manifest file.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("manifest: read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseFS reads and parses a manifest from fs.FS (e.g. embed.FS).
func ParseFS(fsys fs.FS, name string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read fs: %w", err)
	}
	return ParseBytes(data)
}

// LoadDir parses every .yaml/.yml file under root in lexical path order.
func LoadDir(fsys fs.FS, root string) ([]*Manifest, error) {
	var paths []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := path.Ext(p); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: walk %s: %w", root, err)
	}
	slices.Sort(paths)
	out := make([]*Manifest, 0, len(paths))
	for _, p := range paths {
		m, err := ParseFS(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Options returns the register options the manifest carries. Tags are only
// overridden when the manifest lists them.
func (m *Manifest) Options() []promptreg.RegisterOption {
	var opts []promptreg.RegisterOption
	if m.CommitMessage != "" {
		opts = append(opts, promptreg.WithCommitMessage(m.CommitMessage))
	}
	if m.Tags != nil {
		opts = append(opts, promptreg.WithTags(m.Tags))
	}
	return opts
}

// Register registers m through c under name (m.Name when name is empty) and, if the
// manifest names an alias, points it at the new version.
func Register(ctx context.Context, c *promptreg.Client, m *Manifest, name string) (*promptreg.Template, error) {
	if name == "" {
		name = m.Name
	}
	tpl, err := c.Register(ctx, name, m.Template, m.Options()...)
	if err != nil {
		return nil, err
	}
	if m.Alias != "" {
		if _, err := c.SetAlias(ctx, tpl.Name, tpl.Version, m.Alias); err != nil {
			return tpl, err
		}
	}
	return tpl, nil
}
