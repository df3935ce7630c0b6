package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/device-track/dtc/internal/auth"
	"github.com/device-track/dtc/internal/registry"
	"github.com/device-track/dtc/internal/telemetry"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"nil error", nil, http.StatusOK, ""},
		{"invalid coordinates", telemetry.ErrInvalidCoordinates, http.StatusBadRequest, "INVALID_COORDINATES"},
		{"wrapped invalid coordinates", fmt.Errorf("reject: %w", telemetry.ErrInvalidCoordinates), http.StatusBadRequest, "INVALID_COORDINATES"},
		{"not authenticated", registry.ErrNotAuthenticated, http.StatusUnauthorized, "NOT_AUTHENTICATED"},
		{"already authenticated", registry.ErrAlreadyAuthenticated, http.StatusConflict, "ALREADY_AUTHENTICATED"},
		{"unknown connection", registry.ErrUnknownConnection, http.StatusNotFound, "UNKNOWN_CONNECTION"},
		{"bad credential", auth.ErrInvalidCredential, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", ErrNotFoundError, http.StatusNotFound, "NOT_FOUND"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := ToAPIError(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("ToAPIError() = %d, %s; want %d, %s", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}
