// Package audit implements the append-only audit trail for the Device
// Tracking Container.
//
// Every authenticate, join, leave, and publish action is recorded as one
// JSON line with the acting subject, the device involved, and the outcome.
package audit
