// Package demo runs the prompt lifecycle walkthrough: three registrations, loads by
// version and by alias, and one alias assignment.
package demo

import (
	"context"
	"embed"
	"fmt"
	"io"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/manifest"
)

// ProductionAlias is the alias the walkthrough points at the second version.
const ProductionAlias = "Production"

//go:embed prompts/*.yaml
var promptsFS embed.FS

// Result records what the walkthrough registered.
type Result struct {
	Versions []*promptreg.Template // in registration order
	Alias    *promptreg.Alias
}

// Prompts returns the three embedded prompt manifests in registration order.
func Prompts() ([]*manifest.Manifest, error) {
	ms, err := manifest.LoadDir(promptsFS, "prompts")
	if err != nil {
		return nil, err
	}
	if len(ms) != 3 {
		return nil, fmt.Errorf("demo: expected 3 embedded prompts, found %d", len(ms))
	}
	return ms, nil
}

// Run registers the embedded prompts under name and prints each loaded template to w.
// Loads use the version numbers Register returns, so a registry that already holds
// versions of name still round-trips. Run stops at the first error.
func Run(ctx context.Context, c *promptreg.Client, name string, w io.Writer) (*Result, error) {
	ms, err := Prompts()
	if err != nil {
		return nil, err
	}
	res := &Result{}
	r := runner{c: c, name: name, w: w}

	v1, err := r.register(ctx, ms[0])
	if err != nil {
		return res, err
	}
	res.Versions = append(res.Versions, v1)
	if err := r.load(ctx, promptreg.ByVersion(v1.Version)); err != nil {
		return res, err
	}

	v2, err := r.register(ctx, ms[1])
	if err != nil {
		return res, err
	}
	res.Versions = append(res.Versions, v2)
	if err := r.load(ctx, promptreg.ByVersion(v2.Version)); err != nil {
		return res, err
	}

	fmt.Fprintf(w, "Adding alias %s to prompt %s version %d\n", ProductionAlias, name, v2.Version)
	alias, err := c.SetAlias(ctx, name, v2.Version, ProductionAlias)
	if err != nil {
		return res, err
	}
	res.Alias = alias
	fmt.Fprintf(w, "%s\n", promptreg.URI(alias.Name, promptreg.ByAlias(alias.Alias)))
	if err := r.load(ctx, promptreg.ByAlias(ProductionAlias)); err != nil {
		return res, err
	}

	v3, err := r.register(ctx, ms[2])
	if err != nil {
		return res, err
	}
	res.Versions = append(res.Versions, v3)
	if err := r.load(ctx, promptreg.ByVersion(v3.Version)); err != nil {
		return res, err
	}
	return res, nil
}

type runner struct {
	c    *promptreg.Client
	name string
	w    io.Writer
}

func (r runner) register(ctx context.Context, m *manifest.Manifest) (*promptreg.Template, error) {
	tpl, err := r.c.Register(ctx, r.name, m.Template, m.Options()...)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(r.w, "Created prompt '%s' (version %d)\n", tpl.Name, tpl.Version)
	return tpl, nil
}

func (r runner) load(ctx context.Context, sel promptreg.Selector) error {
	tpl, err := r.c.Load(ctx, r.name, sel)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.w, tpl.Body)
	return nil
}
