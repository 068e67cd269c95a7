package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency probe in the health handler.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
	})

	// WebSocket ingestion endpoint. Session auth happens in-band after
	// the upgrade, per the message protocol.
	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

// handleHealth reports server liveness plus the state of each backing
// dependency. The endpoint stays 200 while the listener is up; degraded
// dependencies are reported per-check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	probe := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			checks[name] = err.Error()
		} else {
			checks[name] = "ok"
		}
	}

	if s.db != nil {
		probe("database", s.db.HealthCheck)
	}
	if s.mqtt != nil {
		probe("mqtt", s.mqtt.HealthCheck)
	}
	if s.influxdb != nil {
		probe("influxdb", s.influxdb.HealthCheck)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"connections": s.hub.ClientCount(),
		"checks":      checks,
	})
}
