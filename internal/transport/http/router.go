// Package httptransport is the thin HTTP layer. It delegates to the
// verification service without embedding business logic so transport concerns
// remain isolated.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/link/{subjectID}", h.handleLink)
	r.Get("/auth/start", h.handleAuthStart)
	r.Get("/auth/callback", h.handleAuthCallback)
	r.Get("/auth/failure", h.handleAuthFailure)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
