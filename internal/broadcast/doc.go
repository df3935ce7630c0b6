// Package broadcast implements the location fan-out router for the Device
// Tracking Container.
//
// The router takes a raw fix for a device, enriches it against the device's
// cached prior fix, and hands the result to the transport send primitive for
// every connection currently joined to that device's topic. Derivation and
// the prior-fix cache serialize on the router's mutex, which also fixes the
// per-device delivery order. The send primitive is required to be a
// non-blocking buffered handoff; the actual network write happens on the
// transport's own goroutines.
package broadcast
