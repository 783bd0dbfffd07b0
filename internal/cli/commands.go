package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/config"
	"github.com/skosovsky/promptreg/internal/demo"
	"github.com/skosovsky/promptreg/manifest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (a *app) newDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the register / alias / load walkthrough against the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runNamed(cmd, func(ctx context.Context, c *promptreg.Client, name string) error {
				_, err := demo.Run(ctx, c, name, a.stdout)
				return err
			})
		},
	}
}

func (a *app) newRegisterCommand() *cobra.Command {
	var (
		file    string
		body    string
		message string
		tags    []string
		alias   string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new version of a prompt",
		Long: `Register a new version of a prompt from --body, a YAML manifest (--file) or stdin.

Tags given with --tag replace the default tag set for this registration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := readManifest(cmd.InOrStdin(), file, body)
			if err != nil {
				return err
			}
			if message != "" {
				m.CommitMessage = message
			}
			if alias != "" {
				m.Alias = alias
			}
			if len(tags) > 0 {
				if m.Tags, err = config.ParseTags(tags); err != nil {
					return err
				}
			}
			register := func(ctx context.Context, c *promptreg.Client, name string) error {
				tpl, err := manifest.Register(ctx, c, m, name)
				if tpl != nil {
					fmt.Fprintf(a.stdout, "Created prompt '%s' (version %d)\n", tpl.Name, tpl.Version)
					fmt.Fprintln(a.stdout, tpl.URI())
				}
				if err == nil && m.Alias != "" {
					fmt.Fprintln(a.stdout, promptreg.URI(tpl.Name, promptreg.ByAlias(m.Alias)))
				}
				return err
			}
			if m.Name == "" {
				return a.runNamed(cmd, register)
			}
			return a.run(cmd, func(ctx context.Context, s *session, c *promptreg.Client) error {
				return register(ctx, c, s.cfg.PromptName)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "YAML manifest with template, commit_message, tags and alias")
	f.StringVar(&body, "body", "", "template text")
	f.StringVarP(&message, "message", "m", "", "commit message")
	f.StringArrayVar(&tags, "tag", nil, "tag as key=value (repeatable)")
	f.StringVar(&alias, "alias", "", "alias to point at the new version")
	cmd.MarkFlagsMutuallyExclusive("file", "body")
	return cmd
}

// readManifest builds the manifest for register from exactly one source.
func readManifest(stdin io.Reader, file, body string) (*manifest.Manifest, error) {
	switch {
	case file != "":
		return manifest.ParseFile(file)
	case body != "":
		return &manifest.Manifest{Template: body}, nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: no template given (use --body, --file or stdin)", promptreg.ErrInvalidTemplate)
	}
	return &manifest.Manifest{Template: string(data)}, nil
}

func (a *app) newAliasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "alias VERSION ALIAS",
		Short: "Point an alias at a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version %q is not a number", args[0])
			}
			return a.runNamed(cmd, func(ctx context.Context, c *promptreg.Client, name string) error {
				fmt.Fprintf(a.stdout, "Adding alias %s to prompt %s version %d\n", args[1], name, version)
				al, err := c.SetAlias(ctx, name, version, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, promptreg.URI(al.Name, promptreg.ByAlias(al.Alias)))
				return nil
			})
		},
	}
}

func (a *app) newUnaliasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unalias ALIAS",
		Short: "Remove an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runNamed(cmd, func(ctx context.Context, c *promptreg.Client, name string) error {
				if err := c.DeleteAlias(ctx, name, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Removed alias %s from prompt %s\n", args[0], name)
				return nil
			})
		},
	}
}

func (a *app) newLoadCommand() *cobra.Command {
	var (
		version int
		alias   string
		vars    []string
	)
	cmd := &cobra.Command{
		Use:   "load [prompts:/NAME/VERSION | prompts:/NAME@ALIAS]",
		Short: "Print a prompt template",
		Long: `Print a prompt template selected by URI, --version or --alias.

With --var the template is rendered; every {{ placeholder }} needs a value.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := config.ParseTags(vars)
			if err != nil {
				return err
			}
			show := func(ctx context.Context, c *promptreg.Client, name string) error {
				tpl, err := loadTemplate(ctx, c, name, args, version, alias)
				if err != nil {
					return err
				}
				if len(vars) == 0 {
					fmt.Fprintln(a.stdout, tpl.Body)
					return nil
				}
				text, err := tpl.Format(toAny(values))
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, text)
				return nil
			}
			if len(args) == 0 {
				return a.runNamed(cmd, show)
			}
			return a.run(cmd, func(ctx context.Context, _ *session, c *promptreg.Client) error {
				return show(ctx, c, "")
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&version, "version", 0, "version number")
	f.StringVar(&alias, "alias", "", "alias name")
	f.StringArrayVar(&vars, "var", nil, "template variable as name=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("version", "alias")
	return cmd
}

func loadTemplate(ctx context.Context, c *promptreg.Client, name string, args []string, version int, alias string) (*promptreg.Template, error) {
	if len(args) == 1 {
		if version != 0 || alias != "" {
			return nil, errors.New("pass either a URI or --version/--alias, not both")
		}
		return c.LoadURI(ctx, args[0])
	}
	switch {
	case alias != "":
		return c.Load(ctx, name, promptreg.ByAlias(alias))
	case version != 0:
		return c.Load(ctx, name, promptreg.ByVersion(version))
	}
	return nil, errors.New("pass a prompts:/ URI, --version or --alias")
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (a *app) newVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List every version of the prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runNamed(cmd, func(ctx context.Context, c *promptreg.Client, name string) error {
				versions, err := c.Versions(ctx, name)
				if err != nil {
					return err
				}
				t := table.NewWriter()
				t.SetOutputMirror(a.stdout)
				t.SetStyle(table.StyleRounded)
				t.AppendHeader(table.Row{"Version", "Aliases", "Commit message", "Variables", "Created"})
				for _, tpl := range versions {
					t.AppendRow(table.Row{
						tpl.Version,
						strings.Join(tpl.Aliases, ", "),
						tpl.CommitMessage,
						strings.Join(tpl.Variables(), ", "),
						formatTime(tpl.CreatedAt),
					})
				}
				t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d versions", len(versions))})
				t.Render()
				return nil
			})
		},
	}
}

func (a *app) newDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Show the prompt's tags and aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runNamed(cmd, func(ctx context.Context, c *promptreg.Client, name string) error {
				p, err := c.Prompt(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Name:    %s\nCreated: %s\n", p.Name, formatTime(p.CreatedAt))

				t := table.NewWriter()
				t.SetOutputMirror(a.stdout)
				t.SetStyle(table.StyleRounded)
				t.AppendHeader(table.Row{"Kind", "Key", "Value"})
				for _, k := range slices.Sorted(maps.Keys(p.Tags)) {
					t.AppendRow(table.Row{"tag", k, p.Tags[k]})
				}
				for _, k := range slices.Sorted(maps.Keys(p.Aliases)) {
					t.AppendRow(table.Row{"alias", k, p.Aliases[k]})
				}
				t.Render()
				return nil
			})
		},
	}
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "promptreg %s (commit %s, built %s)\n",
				orDefault(a.info.Version, "dev"), orDefault(a.info.Commit, "unknown"), orDefault(a.info.BuildDate, "unknown"))
		},
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
