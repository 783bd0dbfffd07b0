// Package mlflowserver serves the subset of the MLflow model-registry REST API that
// prompt registration uses, backed by any promptreg store that manages prompt records
// (memstore, sqlstore). It lets the mlflow client run against a local registry.
package mlflowserver

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/mlflowapi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Backend is what the server needs from a store.
type Backend interface {
	promptreg.Store
	promptreg.VersionLister
	promptreg.AliasDeleter
	promptreg.PromptManager
}

// Server is an MLflow-compatible prompt registry HTTP server.
type Server struct {
	router    *chi.Mux
	mu        sync.Mutex
	server    *http.Server
	closed    bool
	backend   Backend
	logger    *zap.Logger
	authToken string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default is zap.NewNop(). A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuthToken requires "Authorization: Bearer <token>" on every API request.
func WithAuthToken(token string) Option {
	return func(s *Server) {
		s.authToken = token
	}
}

// New creates a Server over backend. Panics if backend is nil.
func New(backend Backend, opts ...Option) *Server {
	if backend == nil {
		panic("mlflowserver: Backend must not be nil")
	}
	s := &Server{
		router:  chi.NewRouter(),
		backend: backend,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, mlflowapi.CodeNotFound, "endpoint not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, mlflowapi.CodeInvalidParam, "method not allowed")
	})
	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	s.router.Route(mlflowapi.BasePath, func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post(mlflowapi.PathCreateRegisteredModel, s.createRegisteredModel)
		r.Get(mlflowapi.PathGetRegisteredModel, s.getRegisteredModel)
		r.Post(mlflowapi.PathSetRegisteredModelTag, s.setRegisteredModelTag)
		r.Post(mlflowapi.PathCreateModelVersion, s.createModelVersion)
		r.Get(mlflowapi.PathGetModelVersion, s.getModelVersion)
		r.Get(mlflowapi.PathSearchModelVersions, s.searchModelVersions)
		r.Get(mlflowapi.PathAlias, s.getByAlias)
		r.Post(mlflowapi.PathAlias, s.setAlias)
		r.Delete(mlflowapi.PathAlias, s.deleteAlias)
	})
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown. It returns http.ErrServerClosed after
// a graceful shutdown, including when Shutdown ran first.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()
	s.logger.Info("starting MLflow prompt registry server", zap.String("addr", l.Addr().String()))
	return srv.Serve(l)
}

// Shutdown gracefully stops the server. Later Serve calls return http.ErrServerClosed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down MLflow prompt registry server")
	return srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			want := "Bearer " + s.authToken
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
				writeError(w, http.StatusUnauthorized, mlflowapi.CodeUnauthenticated, "missing or invalid token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
