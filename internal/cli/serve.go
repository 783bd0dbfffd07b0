package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/skosovsky/promptreg/cachestore"
	"github.com/skosovsky/promptreg/internal/backend"
	"github.com/skosovsky/promptreg/mlflowserver"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an MLflow-compatible prompt registry over a local store",
		Long: `Serve the MLflow prompt registry REST API backed by a local store
(--store sqlite:///path or memory:). Point MLFLOW_URI_SMAI at the listen address
to use it from the other commands.

SIGINT or SIGTERM shuts the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.logger.Sync() }()
			return serve(cmd.Context(), s)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "listen address (default 127.0.0.1:5000)")
	f.String("store", "", "backing store: sqlite:///path, memory: or a remote tracking URI (default sqlite:///promptreg.db)")
	f.Duration("cache-ttl", 0, "cache loads from a remote store for this long, 0 disables (default 1m)")
	return cmd
}

func serve(ctx context.Context, s *session) error {
	kind, err := backend.Detect(s.cfg.Server.Store)
	if err != nil {
		return err
	}
	store, err := backend.Open(ctx, s.cfg.Server.Store, s.cfg, s.logger)
	if err != nil {
		return err
	}
	if remote := kind == backend.KindMLflow || kind == backend.KindSageMaker; remote && s.cfg.Server.CacheTTL > 0 {
		s.logger.Info("proxying remote registry with read cache",
			zap.String("kind", string(kind)),
			zap.Duration("ttl", s.cfg.Server.CacheTTL))
		store = cachestore.New(store, cachestore.WithTTL(s.cfg.Server.CacheTTL))
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			s.logger.Warn("closing store", zap.Error(cerr))
		}
	}()

	srv := mlflowserver.New(store,
		mlflowserver.WithLogger(s.logger.Named("server")),
		mlflowserver.WithAuthToken(s.cfg.Server.AuthToken))

	l, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return err
	}

	s.logger.Info("registry listening", zap.String("addr", l.Addr().String()), zap.String("store", s.cfg.Server.Store))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
