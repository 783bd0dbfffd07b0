// Package backend opens the prompt store named by a tracking URI.
//
// Supported forms:
//
//	http://host:port, https://host   MLflow tracking server (REST)
//	arn:aws:sagemaker:...            SageMaker managed MLflow (SigV4)
//	sqlite:///path/to/file.db        local SQLite registry
//	memory:                          in-process registry, lost on exit
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/config"
	"github.com/skosovsky/promptreg/memstore"
	"github.com/skosovsky/promptreg/mlflow"
	"github.com/skosovsky/promptreg/sqlstore"

	"go.uber.org/zap"
)

// Kind names the backend family a URI selects.
type Kind string

const (
	KindMLflow    Kind = "mlflow"
	KindSageMaker Kind = "sagemaker"
	KindSQLite    Kind = "sqlite"
	KindMemory    Kind = "memory"
)

// Store is what every backend returns: the client capability set plus the optional ones
// the CLI and server rely on.
type Store interface {
	promptreg.Store
	promptreg.VersionLister
	promptreg.AliasDeleter
	promptreg.PromptManager
	Close() error
}

// Detect reports which backend uri selects.
func Detect(uri string) (Kind, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return KindMLflow, nil
	case mlflow.IsSageMakerARN(uri):
		return KindSageMaker, nil
	case strings.HasPrefix(uri, "sqlite://"):
		return KindSQLite, nil
	case uri == "memory:" || uri == "memory://":
		return KindMemory, nil
	case uri == "":
		return "", fmt.Errorf("%w: empty tracking URI", promptreg.ErrConfiguration)
	}
	return "", fmt.Errorf("%w: unsupported tracking URI %q", promptreg.ErrConfiguration, uri)
}

// Open returns the store for uri, configured from cfg. The caller closes it.
func Open(ctx context.Context, uri string, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind, err := Detect(uri)
	if err != nil {
		return nil, err
	}
	logger.Debug("opening prompt store", zap.String("kind", string(kind)))

	switch kind {
	case KindMLflow:
		c, err := mlflow.New(uri, clientOptions(cfg, logger)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindSageMaker:
		opts := []mlflow.SageMakerOption{mlflow.WithClientOptions(clientOptions(cfg, logger)...)}
		if cfg != nil && cfg.AWSProfile != "" {
			opts = append(opts, mlflow.WithProfile(cfg.AWSProfile))
		}
		c, err := mlflow.NewSageMaker(ctx, strings.TrimSpace(uri), opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindSQLite:
		path, err := sqlstore.PathFromURI(strings.TrimSpace(uri))
		if err != nil {
			return nil, err
		}
		s, err := sqlstore.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return memoryStore{memstore.New()}, nil
	}
}

func clientOptions(cfg *config.Config, logger *zap.Logger) []mlflow.Option {
	opts := []mlflow.Option{mlflow.WithLogger(logger.Named("mlflow"))}
	if cfg == nil {
		return opts
	}
	if cfg.TrackingToken != "" {
		opts = append(opts, mlflow.WithAuthToken(cfg.TrackingToken))
	} else if cfg.TrackingUsername != "" {
		opts = append(opts, mlflow.WithBasicAuth(cfg.TrackingUsername, cfg.TrackingPassword))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mlflow.WithTimeout(cfg.Timeout))
	}
	return opts
}

// memoryStore gives memstore a no-op Close.
type memoryStore struct {
	*memstore.Store
}

func (memoryStore) Close() error { return nil }

var (
	_ Store = (*mlflow.Client)(nil)
	_ Store = (*sqlstore.Store)(nil)
	_ Store = memoryStore{}
)
