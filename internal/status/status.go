// Package status exposes the crawl daemon's introspection HTTP endpoints:
// a liveness probe and the most recently completed cycle's outcome. See
// spec.md's Status Server collaborator.
package status

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Crawler is the subset of *crawler.Crawler the status server depends on.
type Crawler interface {
	HealthzHandler(w http.ResponseWriter, r *http.Request)
	StatusHandler(w http.ResponseWriter, r *http.Request)
}

// NewRouter returns a configured chi.Router serving:
//
//	GET /healthz – liveness probe
//	GET /status  – JSON encoding of the most recently completed cycle
//	GET /metrics – Prometheus text exposition, if metricsHandler is non-nil
func NewRouter(c Crawler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", c.HealthzHandler)
	r.Get("/status", c.StatusHandler)
	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	return r
}
