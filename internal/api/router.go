package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/api/middleware"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/handlers"
)

// maxBodyBytes bounds request bodies; uploads arrive base64-encoded in
// JSON, so this is the effective attachment size cap (~12MB of raw file).
const maxBodyBytes = 16 << 20

// NewRouter creates and configures the HTTP router. uploadDir is the
// directory served under /files/; empty disables the route.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, uploadDir string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	// CORS - clients are browser apps served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Identity
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Get("/users/search", h.SearchUsers)

	// Chats and timelines
	r.Get("/chats", h.ListChats)
	r.Post("/chats", h.CreateChat)
	r.Post("/chats/members", h.AddMember)
	r.Get("/messages", h.GetMessages)
	r.Post("/messages", h.SendMessage)

	// Attachments
	r.Post("/upload", h.Upload)
	if uploadDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(uploadDir))))
	}

	return r
}
