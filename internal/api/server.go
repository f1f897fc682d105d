package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach/internal/config"
	"github.com/voicecoach/voicecoach/internal/metrics"
)

// ServerOptions carries everything the router needs. Events may be nil.
type ServerOptions struct {
	Config      *config.Config
	Analyzer    Analyzer
	Library     Library
	Events      EventSource
	Health      HealthDeps
	OpenAPISpec []byte
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(opts ServerOptions) chi.Router {
	cfg := opts.Config
	maxBytes := cfg.MaxUploadMB << 20

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	r.Use(metrics.InstrumentHandler)

	// Public routes
	analyze := NewAnalyzeHandler(opts.Analyzer, cfg.UploadDir, maxBytes)
	r.With(RateLimiter(cfg.AnalyzeRPS, cfg.AnalyzeBurst)).Post("/analyze", analyze.Analyze)

	health := NewHealthHandler(opts.Health, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	if len(opts.OpenAPISpec) > 0 {
		r.Get("/api/v1/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(opts.OpenAPISpec)
		})
	}

	// Authenticated routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))

		lib := NewRecordingsHandler(opts.Library, cfg.UploadDir, maxBytes)
		lib.Routes(r, RequireAuth(cfg.AuthToken))

		NewEventsHandler(opts.Events).Routes(r)
	})

	return r
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
