// Package api assembles the HTTP surface: routing, middleware, and the
// health/version/metrics endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/codypharm/zapta-core/internal/api/handlers"
	"github.com/codypharm/zapta-core/internal/api/middleware"
	"github.com/codypharm/zapta-core/internal/config"
	"github.com/codypharm/zapta-core/pkg/metrics"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	// Tenant extraction precedes logging and tracing so both see the tenant.
	r.Use(middleware.TenantExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(metrics.Middleware)
	r.Use(middleware.NewAPIKeyAuth().Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Agents
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Route("/{agentID}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.Put("/", h.UpdateAgent)
				r.Post("/chat", h.ChatAgent)
			})
		})

		// Inbound channels (provider webhooks)
		r.Route("/inbound", func(r chi.Router) {
			r.Post("/email", h.InboundEmail)
			r.Post("/webhook/{agentID}", h.InboundWebhook)
			r.Post("/slack", h.InboundSlack)
			r.Post("/sms", h.InboundSMS)
		})

		// Knowledge base
		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/documents", h.ListDocuments)
			r.Post("/documents", h.UploadDocument)
			r.Delete("/documents/{documentName}", h.DeleteDocument)
			r.Post("/search", h.SearchDocuments)
		})

		// Tenant plumbing
		r.Get("/usage", h.GetUsage)
		r.Get("/executions", h.ListExecutions)
		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", h.ListWebhooks)
			r.Post("/", h.CreateWebhook)
		})
		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", h.ListIntegrations)
			r.Post("/", h.CreateIntegration)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "zapta-core",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "zapta-core",
		})
	}
}
