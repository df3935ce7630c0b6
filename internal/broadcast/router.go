package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/device-track/dtc/internal/auth"
	"github.com/device-track/dtc/internal/registry"
	"github.com/device-track/dtc/internal/telemetry"
)

// EventLocationUpdate is the outbound event type carried by every broadcast.
const EventLocationUpdate = "locationUpdate"

// Event is the wire envelope delivered to every topic member.
type Event struct {
	Type     string                `json:"type"`
	DeviceID string                `json:"deviceId"`
	Fix      telemetry.EnrichedFix `json:"fix"`
}

// Sender is the transport layer's per-connection send primitive. Send must
// never block: implementations hand the payload to a buffered per-connection
// queue and report an error when the connection is gone or the queue is full.
type Sender interface {
	Send(connID string, payload []byte) error
}

// Membership is the registry surface the router needs: topic membership
// snapshots and identity lookups for publish authorization.
type Membership interface {
	MembersOf(deviceID string) []string
	Identity(connID string) *auth.Identity
}

// Router consumes raw fixes and republishes enriched location events to every
// connection joined to the device's topic.
type Router struct {
	mu         sync.Mutex
	membership Membership
	sender     Sender
	prior      map[string]telemetry.Prior
	now        func() time.Time
	logger     *slog.Logger
}

// NewRouter creates a router on top of the given membership view and
// transport sender.
func NewRouter(membership Membership, sender Sender, logger *slog.Logger) *Router {
	return &Router{
		membership: membership,
		sender:     sender,
		prior:      make(map[string]telemetry.Prior),
		now:        time.Now,
		logger:     logger,
	}
}

// Publish broadcasts a fix submitted over a connection. The sender must have
// authenticated first; an unauthenticated publish is rejected and nothing is
// derived, cached, or sent. The sender itself receives the event when it is
// also a topic member.
func (rt *Router) Publish(deviceID string, raw telemetry.RawFix, senderConnID string) (int, error) {
	if rt.membership.Identity(senderConnID) == nil {
		return 0, registry.ErrNotAuthenticated
	}
	return rt.Broadcast(deviceID, raw)
}

// Broadcast enriches and fans out a fix from an already-authorized source
// (a connection that passed the Publish check, or a server-side ingest
// bridge whose producer authenticated at its own boundary).
//
// Returns the number of connections the event was handed to transport for;
// delivery past that point is best-effort and a failed handoff to one member
// never aborts the rest. A device with no current members still updates the
// prior-fix cache.
func (rt *Router) Broadcast(deviceID string, raw telemetry.RawFix) (int, error) {
	if err := raw.Validate(); err != nil {
		return 0, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := rt.now()
	observed := raw.ObservedAt(now)

	var prior *telemetry.Prior
	var elapsed time.Duration
	if cached, ok := rt.prior[deviceID]; ok {
		prior = &cached
		elapsed = observed.Sub(cached.ObservedAt)
	}

	enriched := telemetry.Derive(prior, raw, elapsed, now)

	// Last write wins; arrival order here is the delivery order for the device.
	rt.prior[deviceID] = telemetry.Prior{
		Latitude:   raw.Latitude,
		Longitude:  raw.Longitude,
		ObservedAt: observed,
	}

	members := rt.membership.MembersOf(deviceID)
	if len(members) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(Event{
		Type:     EventLocationUpdate,
		DeviceID: deviceID,
		Fix:      enriched,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal location event: %w", err)
	}

	// Handing off under the lock keeps per-device ordering; Send is a
	// non-blocking queue insert, so a stalled client cannot stall the loop.
	delivered := 0
	for _, connID := range members {
		if err := rt.sender.Send(connID, payload); err != nil {
			rt.logger.Warn("dropped location event",
				"device", deviceID,
				"connection", connID,
				"error", err,
			)
			continue
		}
		delivered++
	}

	return delivered, nil
}

// PriorFix returns the cached prior fix for a device, if any.
func (rt *Router) PriorFix(deviceID string) (telemetry.Prior, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	cached, ok := rt.prior[deviceID]
	return cached, ok
}

// DeviceCount returns the number of devices with a cached fix.
func (rt *Router) DeviceCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.prior)
}
