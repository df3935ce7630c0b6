package api

import (
	"errors"
	"net/http"

	"github.com/device-track/dtc/internal/auth"
	"github.com/device-track/dtc/internal/registry"
	"github.com/device-track/dtc/internal/telemetry"
)

// API error codes for transport/security/lookup conditions
var (
	ErrBadRequest        = errors.New("BAD_REQUEST")
	ErrUnauthorizedError = errors.New("UNAUTHORIZED")
	ErrNotFoundError     = errors.New("NOT_FOUND")
)

// ToAPIError maps a domain error to an HTTP status code and envelope code.
func ToAPIError(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusOK, "", ""
	case errors.Is(err, telemetry.ErrInvalidCoordinates):
		return http.StatusBadRequest, "INVALID_COORDINATES", "Coordinates are outside the valid range"
	case errors.Is(err, registry.ErrNotAuthenticated):
		return http.StatusUnauthorized, "NOT_AUTHENTICATED", "Authentication required"
	case errors.Is(err, registry.ErrAlreadyAuthenticated):
		return http.StatusConflict, "ALREADY_AUTHENTICATED", "Connection is already authenticated"
	case errors.Is(err, registry.ErrUnknownConnection):
		return http.StatusNotFound, "UNKNOWN_CONNECTION", "Connection is not registered"
	case errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Credential rejected"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST", "Malformed or missing required parameter"
	case errors.Is(err, ErrUnauthorizedError):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"
	case errors.Is(err, ErrNotFoundError):
		return http.StatusNotFound, "NOT_FOUND", "Resource not found"
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal server error"
	}
}

// WriteDomainError converts a domain error into an envelope response.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, code, message := ToAPIError(err)
	WriteError(w, status, code, message, nil)
}
