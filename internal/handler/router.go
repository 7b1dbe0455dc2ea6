package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/journal-coach/internal/middleware"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
)

// RouterConfig configures the API router.
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	// UploadRateLimit applies to document uploads and searches, which call
	// paid remote services.
	UploadRateLimit int

	Logger *logger.Logger
}

// Handlers groups the API handlers.
type Handlers struct {
	Health    *HealthHandler
	Documents *DocumentHandler
	Session   *SessionHandler
	Stream    *StreamHandler
	Search    *SearchHandler
	History   *HistoryHandler
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		expensive := func(next http.Handler) http.Handler { return next }
		if cfg.UploadRateLimit > 0 {
			expensive = middleware.RateLimit(cfg.UploadRateLimit, cfg.RateLimitWindow)
		}

		r.Route("/documents", func(r chi.Router) {
			r.With(expensive).Post("/", h.Documents.Upload)
			r.Get("/", h.Documents.List)
			r.Get("/{id}", h.Documents.Get)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.Session.State)
			r.Put("/document", h.Session.SelectDocument)
			r.Post("/connect", h.Session.Connect)
			r.Post("/disconnect", h.Session.Disconnect)
			r.Post("/mute", h.Session.Mute)
			r.Post("/unmute", h.Session.Unmute)
			r.Post("/audio", h.Session.Audio)
			r.Post("/text", h.Session.Text)
			r.Get("/messages", h.Session.Messages)
			r.Get("/stream", h.Stream.Stream)
		})

		r.With(expensive).Post("/search", h.Search.Search)
		r.Get("/search", h.Search.Results)

		r.Get("/chats", h.History.Chats)
		r.Get("/chats/{groupID}/events", h.History.ChatEvents)
		r.Get("/transcripts/{chatID}", h.History.Transcript)
	})

	return r
}
