package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/tocgest/internal/config"
	"github.com/dgallion1/tocgest/internal/extract"
	"github.com/dgallion1/tocgest/internal/pipeline"
)

// Server is the HTTP API server for tocgest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	stats        *extract.LatencyStats
	open         pipeline.OpenFunc
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. stats may be nil when
// OCR is disabled.
func NewServer(orch *pipeline.Orchestrator, stats *extract.LatencyStats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		stats:        stats,
		open:         orch.Open,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		// Uploads share one token bucket.
		upload := RateLimit(s.cfg.RateLimit, s.cfg.RateBurst)
		r.With(upload).Post("/api/toc", s.handleExtract)
		r.With(upload).Post("/api/toc/jobs", s.handleSubmit)
		r.Get("/api/toc/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/ocr", s.handleOCRStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
