// Package api exposes the lane controller over HTTP for headless use.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"audio-workbench/internal/domain"
	"audio-workbench/internal/jobs"
	"audio-workbench/internal/lanes"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Controller is the application surface served by the router.
type Controller interface {
	Lanes() []domain.Task
	Events(since int64) []jobs.Event
	History(limit int) ([]domain.BatchResult, error)
	GetSettings() (domain.Settings, error)
	SaveSettings(settings domain.Settings) (domain.Settings, error)
	GetDiagnostics() domain.DiagnosticReport
	RefreshDiagnostics() (domain.DiagnosticReport, error)
	StartExtraction(req lanes.ExtractionRequest) (domain.Task, error)
	StartSplit(req lanes.SplitRequest) (domain.Task, error)
	StartUpload(req lanes.UploadRequest) (domain.Task, error)
	StartTranscription(req lanes.TranscriptionRequest) (domain.Task, error)
	Cancel(lane domain.Lane) error
}

// Options configures NewRouter.
type Options struct {
	// JWTSecret enables bearer token auth on every route but /api/health.
	JWTSecret    string
	CORSOrigins  []string
	HistoryLimit int
	Logger       *slog.Logger
}

// NewRouter builds the HTTP routes over c.
func NewRouter(c Controller, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{c: c, historyLimit: opts.HistoryLimit, logger: logger}
	if h.historyLimit <= 0 {
		h.historyLimit = 50
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(corsOptions(opts.CORSOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Group(func(r chi.Router) {
			if opts.JWTSecret != "" {
				r.Use(bearerAuth([]byte(opts.JWTSecret)))
			}
			r.Use(maxBodySize(maxBodyBytes))

			r.Get("/lanes", h.listLanes)
			r.Post("/lanes/{lane}/start", h.startLane)
			r.Post("/lanes/{lane}/cancel", h.cancelLane)
			r.Get("/events", h.events)
			r.Get("/batches", h.batches)

			r.Get("/settings", h.getSettings)
			r.Put("/settings", h.putSettings)

			r.Get("/diagnostics", h.diagnostics)
			r.Post("/diagnostics/refresh", h.refreshDiagnostics)
		})
	})

	return r
}
