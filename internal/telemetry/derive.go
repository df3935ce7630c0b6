package telemetry

import (
	"math"
	"time"
)

// earthRadiusKm is the mean spherical earth radius used for haversine distance.
const earthRadiusKm = 6371.0

// kmhToMph is the fixed km/h to mph conversion factor.
const kmhToMph = 0.621371

// Derive computes the enriched fix for next given the prior sample for the
// same device. prior may be nil (first fix for the device): distance is then 0
// and bearing 0 (due north). elapsed is the time between the prior and next
// observations; pass 0 or a negative value when unknown.
//
// A speed supplied on the fix is trusted as-is. Otherwise speed is derived
// from distance over elapsed when elapsed is positive. When neither source is
// available the speed is unknown and the fix is classified MotionUnknown.
func Derive(prior *Prior, next RawFix, elapsed time.Duration, now time.Time) EnrichedFix {
	enriched := EnrichedFix{
		Latitude:   next.Latitude,
		Longitude:  next.Longitude,
		Accuracy:   next.Accuracy,
		Altitude:   next.Altitude,
		Heading:    next.Heading,
		ComputedAt: now,
	}

	if prior != nil {
		enriched.DistanceKm = HaversineKm(prior.Latitude, prior.Longitude, next.Latitude, next.Longitude)
		enriched.BearingDeg = BearingDeg(prior.Latitude, prior.Longitude, next.Latitude, next.Longitude)
	}

	speed, known := deriveSpeedKmh(next.SpeedKmh, enriched.DistanceKm, elapsed)
	enriched.SpeedKmh = speed
	enriched.SpeedMph = speed * kmhToMph
	enriched.MotionState = classify(speed, known)

	return enriched
}

// deriveSpeedKmh resolves the speed for a fix and reports whether the value is
// actually known, as opposed to a placeholder zero.
func deriveSpeedKmh(supplied *float64, distanceKm float64, elapsed time.Duration) (float64, bool) {
	if supplied != nil && !math.IsNaN(*supplied) {
		return *supplied, true
	}
	if elapsed > 0 {
		hours := elapsed.Hours()
		return distanceKm / hours, true
	}
	return 0, false
}

// classify maps a speed to a motion state. Thresholds are inclusive on the
// lower bound and exclusive on the upper bound.
func classify(speedKmh float64, known bool) MotionState {
	if !known || math.IsNaN(speedKmh) {
		return MotionUnknown
	}
	switch {
	case speedKmh < walkingThresholdKmh:
		return MotionStationary
	case speedKmh < drivingThresholdKmh:
		return MotionWalking
	default:
		return MotionDriving
	}
}

// HaversineKm returns the great-circle distance in kilometers between two
// coordinates on a spherical earth.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// BearingDeg returns the initial compass bearing in degrees from the first
// coordinate to the second, normalized into [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dLambda := radians(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	deg := math.Mod(degrees(math.Atan2(y, x))+360, 360)
	return deg
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
