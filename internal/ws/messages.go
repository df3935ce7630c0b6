package ws

import (
	"errors"

	"github.com/device-track/dtc/internal/auth"
	"github.com/device-track/dtc/internal/registry"
	"github.com/device-track/dtc/internal/telemetry"
)

// Inbound message types.
const (
	MsgAuthenticate = "authenticate"
	MsgJoin         = "joinDeviceTopic"
	MsgLeave        = "leaveDeviceTopic"
	MsgPublish      = "publishFix"
)

// Outbound message types. Location events use broadcast.EventLocationUpdate.
const (
	MsgAuthenticated = "authenticated"
	MsgJoined        = "joined"
	MsgLeft          = "left"
	MsgError         = "error"
)

// clientMessage is the envelope for every inbound frame.
type clientMessage struct {
	Type     string            `json:"type"`
	Token    string            `json:"token,omitempty"`
	DeviceID string            `json:"deviceId,omitempty"`
	Fix      *telemetry.RawFix `json:"fix,omitempty"`
}

// serverMessage is the envelope for control and error frames.
type serverMessage struct {
	Type     string         `json:"type"`
	DeviceID string         `json:"deviceId,omitempty"`
	Identity *auth.Identity `json:"identity,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
}

func errorEnvelope(deviceID string, code, message string) serverMessage {
	return serverMessage{
		Type:     MsgError,
		DeviceID: deviceID,
		Code:     code,
		Message:  message,
	}
}

// errorCode maps domain sentinels to stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotAuthenticated):
		return "NOT_AUTHENTICATED"
	case errors.Is(err, registry.ErrAlreadyAuthenticated):
		return "ALREADY_AUTHENTICATED"
	case errors.Is(err, registry.ErrUnknownConnection):
		return "UNKNOWN_CONNECTION"
	case errors.Is(err, telemetry.ErrInvalidCoordinates):
		return "INVALID_COORDINATES"
	case errors.Is(err, auth.ErrInvalidCredential):
		return "AUTH_INVALID"
	default:
		return "INTERNAL"
	}
}
