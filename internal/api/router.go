package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the database probe in the health handler.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.handleGetState)
			r.Get("/{channel}", s.handleGetChannel)
		})

		r.Get("/history", s.handleGetHistory)
		r.Get("/ws", s.handleWebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	BridgeID         string `json:"bridge_id"`
	DeviceOpen       bool   `json:"device_open"`
	NetworkConnected *bool  `json:"network_connected,omitempty"`
	Database         string `json:"database"`
}

// handleHealth reports "ok", or "degraded" when the journal database fails
// its probe. The status code is 200 either way; the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.store.GetState()
	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		BridgeID:   s.bridgeID,
		DeviceOpen: st.Device != nil && st.Device.IsOpen(),
		Database:   "disabled",
	}

	if s.bridge != nil {
		connected := s.bridge.Stats().NetworkConnected
		resp.NetworkConnected = &connected
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			resp.Database = "error"
			resp.Status = "degraded"
		} else {
			resp.Database = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
