package api

import (
	"net/http"

	"github.com/device-track/dtc/internal/broadcast"
	"github.com/device-track/dtc/internal/registry"
	"github.com/device-track/dtc/internal/telemetry"
	"github.com/device-track/dtc/internal/ws"
)

// RouterPort is the minimal broadcast surface the API needs.
type RouterPort interface {
	Broadcast(deviceID string, raw telemetry.RawFix) (int, error)
	PriorFix(deviceID string) (telemetry.Prior, bool)
}

// GatewayPort is the WebSocket handler mounted on the upgrade route.
type GatewayPort interface {
	http.Handler
	SessionCount() int
}

// RegistryPort exposes the registry counters reported by the health endpoint.
type RegistryPort interface {
	ConnectionCount() int
	TopicCount() int
}

// Compile-time assertions for port conformance
var _ RouterPort = (*broadcast.Router)(nil)
var _ GatewayPort = (*ws.Gateway)(nil)
var _ RegistryPort = (*registry.Registry)(nil)
