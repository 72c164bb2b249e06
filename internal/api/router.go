package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthTimeout bounds each dependency check on /health.
const healthTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(bodyLimitMiddleware)

	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/device", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Put("/physical-address", s.handleSetPhysicalAddress)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.handleListConfig)
			r.Post("/restore-defaults", s.handleRestoreDefaults)
			r.Get("/{id}", s.handleGetConfig)
			r.Put("/{id}", s.handleSetConfig)
		})

		r.Get("/callbacks", s.handleListCallbacks)

		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", s.handleListAssignments)
			r.Post("/", s.handleCreateAssignment)
			r.Delete("/{id}", s.handleDeleteAssignment)
		})

		r.Route("/feedback", func(r chi.Router) {
			r.Get("/", s.handleListFeedback)
			r.Post("/{id}/trigger", s.handleTriggerFeedback)
		})

		r.Post("/telegrams", s.handleSendTelegram)

		r.Route("/storage", func(r chi.Router) {
			r.Post("/save", s.handleSave)
			r.Post("/load", s.handleLoad)
		})
	})

	return r
}

// handleHealth reports "ok" or "degraded" with the state of each
// dependency. The status code is always 200 so the endpoint doubles as a
// liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.health))
	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"checks":         checks,
	})
}
