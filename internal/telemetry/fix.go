package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Coordinate range errors
var (
	ErrInvalidCoordinates = errors.New("INVALID_COORDINATES")
)

// MotionState classifies how a device is moving based on its speed.
type MotionState string

const (
	MotionStationary MotionState = "STATIONARY"
	MotionWalking    MotionState = "WALKING"
	MotionDriving    MotionState = "DRIVING"
	MotionUnknown    MotionState = "UNKNOWN"
)

// Speed thresholds in km/h. Lower bound inclusive, upper bound exclusive.
const (
	walkingThresholdKmh = 2.0
	drivingThresholdKmh = 10.0
)

// RawFix is a single GPS coordinate sample as received from a device.
// Optional fields are pointers so that "absent" and "zero" stay distinct
// on the wire. Timestamp is epoch milliseconds.
type RawFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	SpeedKmh  *float64 `json:"speedKmh,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"`
}

// Validate checks coordinate ranges. Optional motion attributes are not
// validated here; a nonsense heading from a cheap tracker should not cost
// the viewer the position itself.
func (f RawFix) Validate() error {
	if f.Latitude < -90 || f.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinates, f.Latitude)
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinates, f.Longitude)
	}
	return nil
}

// ObservedAt returns the fix timestamp, or fallback when the fix carries none.
func (f RawFix) ObservedAt(fallback time.Time) time.Time {
	if f.Timestamp == nil {
		return fallback
	}
	return time.UnixMilli(*f.Timestamp)
}

// EnrichedFix is a RawFix augmented with derived motion attributes.
type EnrichedFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`

	DistanceKm  float64     `json:"distanceKm"`
	BearingDeg  float64     `json:"bearingDeg"`
	SpeedKmh    float64     `json:"speedKmh"`
	SpeedMph    float64     `json:"speedMph"`
	MotionState MotionState `json:"motionState"`
	ComputedAt  time.Time   `json:"computedAt"`
}

// Prior is the cached previous sample for a device: the coordinates of the
// last accepted fix and the instant it was observed. It exists only to supply
// the delta for the next derivation and is overwritten on every update.
type Prior struct {
	Latitude   float64
	Longitude  float64
	ObservedAt time.Time
}
