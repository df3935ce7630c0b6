package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/device-track/dtc/internal/auth"
)

// CredentialVerifier resolves the identity behind a bearer credential.
// Implementations may perform network I/O (JWKS refresh) and are therefore
// never invoked while the registry lock is held.
type CredentialVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// connection is the registry's record of one live transport session.
type connection struct {
	id       string
	identity *auth.Identity
	topics   map[string]struct{}
}

// Registry tracks live connections, their authenticated identities, and the
// membership set of every device topic.
//
// All operations serialize on a single mutex. Membership mutation and lookup
// are in-memory and O(topic size) or better; nothing under the lock blocks
// on I/O.
type Registry struct {
	mu       sync.Mutex
	verifier CredentialVerifier
	conns    map[string]*connection
	topics   map[string]map[string]struct{}
}

// New creates an empty registry backed by the given credential verifier.
func New(verifier CredentialVerifier) *Registry {
	return &Registry{
		verifier: verifier,
		conns:    make(map[string]*connection),
		topics:   make(map[string]map[string]struct{}),
	}
}

// Register creates a connection with no identity and no topic memberships,
// returning its id. Called by the transport layer on accept.
func (r *Registry) Register() string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id] = &connection{
		id:     id,
		topics: make(map[string]struct{}),
	}
	return id
}

// Authenticate verifies the credential and binds the resulting identity to
// the connection exactly once. Re-authentication on an already-authenticated
// connection fails with ErrAlreadyAuthenticated; a bad credential surfaces
// the verifier's error and leaves the connection registered (the transport
// layer decides whether to drop it).
func (r *Registry) Authenticate(connID, token string) (*auth.Identity, error) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	if conn.identity != nil {
		r.mu.Unlock()
		return nil, ErrAlreadyAuthenticated
	}
	r.mu.Unlock()

	// Verification may hit the network; run it unlocked.
	identity, err := r.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok = r.conns[connID]
	if !ok {
		// Connection closed while the token was being verified.
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	if conn.identity != nil {
		return nil, ErrAlreadyAuthenticated
	}
	conn.identity = identity
	return identity, nil
}

// Identity returns the identity bound to a connection, or nil when the
// connection is unknown or not yet authenticated.
func (r *Registry) Identity(connID string) *auth.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	return conn.identity
}

// JoinDeviceTopic adds the connection to the device's member set, creating
// the topic if absent. Requires prior successful authentication.
func (r *Registry) JoinDeviceTopic(connID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	if conn.identity == nil {
		return ErrNotAuthenticated
	}

	members, ok := r.topics[deviceID]
	if !ok {
		members = make(map[string]struct{})
		r.topics[deviceID] = members
	}
	members[connID] = struct{}{}
	conn.topics[deviceID] = struct{}{}
	return nil
}

// LeaveDeviceTopic removes the connection from the device's member set.
// Idempotent: leaving a topic the connection never joined is a no-op. The
// topic entry is discarded once its member set becomes empty.
func (r *Registry) LeaveDeviceTopic(connID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		delete(conn.topics, deviceID)
	}
	r.removeMemberLocked(deviceID, connID)
	return nil
}

// Unregister removes the connection from every topic it had joined and
// discards its identity binding. Called exactly once per connection, on
// transport close. Idempotent against stray double-closes.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	for deviceID := range conn.topics {
		r.removeMemberLocked(deviceID, connID)
	}
	delete(r.conns, connID)
}

// MembersOf returns a snapshot of the device topic's member connection ids.
// Membership may change concurrently; callers must not assume the snapshot
// stays valid after the call returns.
func (r *Registry) MembersOf(deviceID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[deviceID]
	if !ok {
		return nil
	}
	snapshot := make([]string, 0, len(members))
	for id := range members {
		snapshot = append(snapshot, id)
	}
	return snapshot
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// TopicCount returns the number of device topics with at least one member.
func (r *Registry) TopicCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// removeMemberLocked drops a connection from a topic and garbage-collects the
// topic when it empties. Caller must hold r.mu.
func (r *Registry) removeMemberLocked(deviceID, connID string) {
	members, ok := r.topics[deviceID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.topics, deviceID)
	}
}
