// Package api serves catalog matching over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/catalogmatch/internal/mcpserver"
	"github.com/Aman-CERP/catalogmatch/pkg/version"
)

// DefaultRequestTimeout bounds a single request, including the language
// model round trips of /v1/match.
const DefaultRequestTimeout = 2 * time.Minute

// Config holds router configuration.
type Config struct {
	// APIKey enables bearer authentication on /v1 when non-empty.
	APIKey         string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter creates the HTTP API. m may be nil, in which case /v1/match
// answers 503.
func NewRouter(engine mcpserver.Retriever, m mcpserver.Matcher, cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		engine:  engine,
		matcher: m,
		logger:  logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "catalogmatch",
			"version": version.Version,
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(cfg.APIKey))
		r.Post("/match", h.match)
		r.Post("/search", h.search)
	})

	return r
}
