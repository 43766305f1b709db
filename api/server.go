// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/poller"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the ingestion surface the server exposes.
type Service interface {
	Submit(ctx context.Context, path string, opts ...ingestion.SubmitOption) (*core.KnowledgeSource, error)
	Refresh(ctx context.Context, id core.ID) (*core.KnowledgeSource, error)
	RefreshAll(ctx context.Context) (queued, skipped []core.ID, err error)
	Delete(ctx context.Context, id core.ID) error
	Get(ctx context.Context, id core.ID) (*core.KnowledgeSource, error)
	List(ctx context.Context) ([]*core.KnowledgeSource, error)
	Stats(ctx context.Context) (*core.Stats, error)
}

// Searcher answers text queries over stored chunks.
type Searcher interface {
	FindSimilar(ctx context.Context, query string, maxHits int, sources ...core.ID) ([]*core.SearchResult, error)
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer     *http.Server
	service        Service
	searcher       Searcher
	poller         *poller.Poller
	gatherer       prometheus.Gatherer
	allowedOrigins []string
	requestTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer serves metrics from g on /metrics.
// Default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithAllowedOrigins sets the CORS origins allowed to call the API.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRequestTimeout bounds how long a request may run.
// Default is 60 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithClock overrides the time source used for ETAs.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer builds and wires all routes. searcher may be nil, in which case
// the search route answers 501.
func NewServer(addr string, service Service, searcher Searcher, opts ...Option) *Server {
	s := &Server{
		service:        service,
		searcher:       searcher,
		gatherer:       prometheus.DefaultGatherer,
		allowedOrigins: []string{"http://localhost:5173"},
		requestTimeout: 60 * time.Second,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.poller = poller.New(service, poller.WithClock(s.now), poller.WithLogger(s.logger))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the HTTP server until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/knowledge", func(api chi.Router) {
		api.Get("/", s.listSources)
		api.Post("/", s.submitSource)
		api.Get("/stats", s.stats)
		api.Post("/refresh", s.refreshAll)
		api.Post("/search", s.search)
		api.Get("/{id}", s.getSource)
		api.Post("/{id}/refresh", s.refreshSource)
		api.Delete("/{id}", s.deleteSource)
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
