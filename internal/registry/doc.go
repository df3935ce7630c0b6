// Package registry implements connection and room membership tracking for the
// Device Tracking Container.
//
// The registry owns all mutable shared state of the real-time core: which
// connections are live, which identity each one authenticated as, and which
// device topics each one has joined. A single mutex serializes every
// operation, so no caller ever observes a half-updated membership set.
// Credential verification happens outside that lock; the verifier may reach
// the network (JWKS refresh) and must never stall membership traffic.
package registry
