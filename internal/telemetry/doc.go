// Package telemetry implements the motion derivation core for the Device Tracking Container.
//
// Given the previous fix for a device (or none) and a freshly received raw fix,
// Derive computes great-circle distance, initial bearing, speed, and a motion
// classification. The package holds no state and performs no I/O; every function
// is safe for concurrent use.
package telemetry
