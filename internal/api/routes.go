package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/device-track/dtc/internal/audit"
	"github.com/device-track/dtc/internal/auth"
	"github.com/device-track/dtc/internal/telemetry"
)

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	// WebSocket upgrade; clients authenticate in-band after the upgrade
	if s.gateway != nil {
		mux.Handle(apiV1+"/ws", s.gateway)
	}

	// Device endpoints (location ingest, last known position)
	if s.authMiddleware == nil {
		mux.HandleFunc(apiV1+"/devices/", s.handleDeviceEndpoints)
		return
	}
	mux.HandleFunc(apiV1+"/devices/", s.authMiddleware.RequireAuth(s.handleDeviceEndpoints))
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	health := map[string]interface{}{
		"status":        "ok",
		"uptimeSeconds": int(time.Since(s.startTime).Seconds()),
	}
	if s.registry != nil {
		health["connections"] = s.registry.ConnectionCount()
		health["deviceTopics"] = s.registry.TopicCount()
	}
	if s.gateway != nil {
		health["sessions"] = s.gateway.SessionCount()
	}

	WriteSuccess(w, health)
}

// handleDeviceEndpoints dispatches /devices/{id}/location and /devices/{id}/last.
func (s *Server) handleDeviceEndpoints(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
		return
	}
	deviceID := parts[0]

	switch parts[1] {
	case "location":
		s.handlePublishLocation(w, r, deviceID)
	case "last":
		s.handleLastFix(w, r, deviceID)
	default:
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	}
}

// handlePublishLocation handles POST /devices/{id}/location. The bearer token
// on the request authorizes the publish; the fix then fans out to every
// connection joined to the device topic.
func (s *Server) handlePublishLocation(w http.ResponseWriter, r *http.Request, deviceID string) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only POST method is allowed", nil)
		return
	}

	// Parse request (strict JSON)
	var fix telemetry.RawFix
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fix); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return
	}
	// Trailing data check
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return
	}

	delivered, err := s.router.Broadcast(deviceID, fix)
	s.audit.Record(audit.ActionPublish, s.subject(r), deviceID, err)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"deviceId":  deviceID,
		"delivered": delivered,
	})
}

// handleLastFix handles GET /devices/{id}/last
func (s *Server) handleLastFix(w http.ResponseWriter, r *http.Request, deviceID string) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	prior, ok := s.router.PriorFix(deviceID)
	if !ok {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "No fix recorded for device", nil)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"deviceId":   deviceID,
		"latitude":   prior.Latitude,
		"longitude":  prior.Longitude,
		"observedAt": prior.ObservedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) subject(r *http.Request) string {
	if identity := auth.IdentityFromRequest(r); identity != nil {
		return identity.SubjectID
	}
	return ""
}
