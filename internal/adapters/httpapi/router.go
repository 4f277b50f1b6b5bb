// Package httpapi exposes cache lookups and operator controls over HTTP.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.trai.ch/tally/internal/core/ports"
)

// NewRouter mounts the API routes for service.
func NewRouter(service Service, log ports.Logger) http.Handler {
	h := &Handler{service: service}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(log))
	r.Use(loggingMiddleware(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok") })

	r.Route("/v1", func(r chi.Router) {
		r.Get("/lookup", h.lookup)
		r.Get("/status", h.status)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/", h.listCache)
			r.Delete("/", h.purgeAll)
			r.Delete("/{channel}/{months}/{subject}", h.purgeKey)
		})

		r.Route("/limiter", func(r chi.Router) {
			r.Post("/resume", h.resume)
			r.Put("/params", h.setParams)
		})
	})

	return r
}
