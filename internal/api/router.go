package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/BioTRaX/Growen-sub001/internal/api/handlers"
	"github.com/BioTRaX/Growen-sub001/internal/api/middleware"
	"github.com/BioTRaX/Growen-sub001/internal/auth"
	"github.com/BioTRaX/Growen-sub001/internal/chat"
	"github.com/BioTRaX/Growen-sub001/internal/metrics"
)

// Deps are the components the router exposes.
type Deps struct {
	Handlers       *handlers.Handlers
	Chat           *chat.Handler
	Auth           *auth.ProviderChain
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// NewRouter creates the HTTP router with all routes.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", d.Handlers.Health)
	r.Get("/version", d.Handlers.Version)
	r.Handle("/metrics", d.Metrics.Handler())

	// Identified routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Auth))
		r.Use(middleware.Session)

		r.Get("/ws/chat", d.Chat.ServeWS)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/chat", d.Chat.ServeTurn)
			r.Get("/providers", d.Handlers.ListProviders)
			r.Post("/resolve", d.Handlers.Resolve)
			r.Get("/sessions/{sessionKey}/history", d.Handlers.SessionHistory)
		})
	})

	return r
}
