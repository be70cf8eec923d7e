package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts every route. timeout bounds each request context and
// should exceed the longest provider timeout.
func NewRouter(h *Handler, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(DeadlineMiddleware(timeout))
	r.Use(CORSMiddleware)

	r.Get("/health", h.HandleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate/{serviceType}", h.HandleGenerate)
		r.Post("/parse", h.HandleParse)
		r.Get("/chains/{serviceType}", h.HandleChain)
		r.Get("/providers", h.HandleProviders)
		r.Get("/logs", h.HandleLogs)
		r.Get("/metrics", h.HandleMetrics)
		r.Post("/admin/reload", h.HandleReload)
	})

	return r
}
