// Package cli implements the promptreg command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/backend"
	"github.com/skosovsky/promptreg/internal/config"
	"github.com/skosovsky/promptreg/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes returned by Execute.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
)

// BuildInfo is set by the main package from ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

type app struct {
	info       BuildInfo
	stdout     io.Writer
	stderr     io.Writer
	configFile string
	envFiles   []string
}

// NewRootCommand builds the command tree writing command output to stdout and
// logs plus errors to stderr.
func NewRootCommand(info BuildInfo, stdout, stderr io.Writer) *cobra.Command {
	a := &app{info: info, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "promptreg",
		Short: "Register, alias and load versioned prompt templates",
		Long: `promptreg manages versioned prompt templates in an MLflow prompt registry.

The registry is chosen by the tracking URI (MLFLOW_URI_SMAI or --tracking-uri):
an MLflow server URL, a SageMaker MLflow tracking server ARN, sqlite:///path or memory:.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file")
	pf.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files to load (missing files are skipped)")
	pf.String("tracking-uri", "", "registry tracking URI (overrides "+config.EnvTrackingURI+")")
	pf.String("prompt", "", "prompt name (overrides "+config.EnvPromptName+")")
	pf.Duration("timeout", 0, "per-request timeout (default 30s)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")

	root.AddCommand(
		a.newDemoCommand(),
		a.newRegisterCommand(),
		a.newAliasCommand(),
		a.newUnaliasCommand(),
		a.newLoadCommand(),
		a.newVersionsCommand(),
		a.newDescribeCommand(),
		a.newServeCommand(),
		a.newVersionCommand(),
	)
	return root
}

// Execute runs the command line args and returns the process exit code.
// Configuration errors exit with ExitConfiguration.
func Execute(ctx context.Context, info BuildInfo, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(info, stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, promptreg.ErrConfiguration) {
			return ExitConfiguration
		}
		return ExitFailure
	}
	return ExitOK
}

// session carries what a command needs once configuration is loaded.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (a *app) session(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: a.configFile,
		EnvFiles:   a.envFiles,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", promptreg.ErrConfiguration, err)
	}
	logger.Debug("configuration loaded", zap.Any("config", cfg.Redacted()))
	return &session{cfg: cfg, logger: logger}, nil
}

// client opens the configured registry. The caller closes the returned client.
func (s *session) client(ctx context.Context) (*promptreg.Client, error) {
	if err := s.cfg.RequireRegistry(); err != nil {
		return nil, err
	}
	store, err := backend.Open(ctx, s.cfg.TrackingURI, s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	opts := []promptreg.ClientOption{promptreg.WithLogger(s.logger)}
	tags, err := s.cfg.TagMap()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if tags != nil {
		opts = append(opts, promptreg.WithDefaultTags(tags))
	}
	return promptreg.New(store, opts...), nil
}

// promptName returns the configured prompt name, failing with ErrConfiguration when unset.
func (s *session) promptName() (string, error) {
	if err := s.cfg.RequirePromptName(); err != nil {
		return "", err
	}
	return s.cfg.PromptName, nil
}

// run loads the session, opens the registry and calls fn with a client bounded by ctx.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, s *session, c *promptreg.Client) error) error {
	return a.open(cmd, false, fn)
}

// runNamed is run for commands that act on the configured prompt. The prompt name is
// checked before the registry is opened, so a missing name never touches the store.
func (a *app) runNamed(cmd *cobra.Command, fn func(ctx context.Context, c *promptreg.Client, name string) error) error {
	return a.open(cmd, true, func(ctx context.Context, s *session, c *promptreg.Client) error {
		return fn(ctx, c, s.cfg.PromptName)
	})
}

func (a *app) open(cmd *cobra.Command, named bool, fn func(ctx context.Context, s *session, c *promptreg.Client) error) error {
	s, err := a.session(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()
	if named {
		if _, err := s.promptName(); err != nil {
			return err
		}
	}
	ctx := cmd.Context()
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			s.logger.Warn("closing registry", zap.Error(cerr))
		}
	}()
	return fn(ctx, s, c)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
