package telemetry

import (
	"math"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestDeriveNoPrior(t *testing.T) {
	now := time.Now()
	fix := RawFix{Latitude: 40.0, Longitude: -74.0}

	enriched := Derive(nil, fix, 0, now)

	if enriched.DistanceKm != 0 {
		t.Errorf("expected zero distance without prior, got %v", enriched.DistanceKm)
	}
	if enriched.BearingDeg != 0 {
		t.Errorf("expected zero bearing without prior, got %v", enriched.BearingDeg)
	}
	if enriched.MotionState != MotionUnknown {
		t.Errorf("expected UNKNOWN motion without speed or elapsed, got %s", enriched.MotionState)
	}
	if !enriched.ComputedAt.Equal(now) {
		t.Errorf("expected ComputedAt %v, got %v", now, enriched.ComputedAt)
	}
}

func TestDeriveDistanceAndBearing(t *testing.T) {
	prior := &Prior{Latitude: 40.0, Longitude: -74.0, ObservedAt: time.Now().Add(-10 * time.Second)}
	fix := RawFix{Latitude: 40.001, Longitude: -74.0}

	enriched := Derive(prior, fix, 10*time.Second, time.Now())

	// 0.001 degrees of latitude is roughly 111 meters.
	if enriched.DistanceKm <= 0 {
		t.Fatalf("expected positive distance, got %v", enriched.DistanceKm)
	}
	if math.Abs(enriched.DistanceKm-0.1112) > 0.001 {
		t.Errorf("expected distance near 0.111 km, got %v", enriched.DistanceKm)
	}

	// Due north movement: bearing near 0.
	if enriched.BearingDeg > 1 && enriched.BearingDeg < 359 {
		t.Errorf("expected bearing near 0 (due north), got %v", enriched.BearingDeg)
	}

	// ~111m over 10s is ~40 km/h: driving.
	if enriched.MotionState != MotionDriving {
		t.Errorf("expected DRIVING for %v km over 10s, got %s", enriched.DistanceKm, enriched.MotionState)
	}
	wantSpeed := enriched.DistanceKm / (10.0 / 3600.0)
	if math.Abs(enriched.SpeedKmh-wantSpeed) > 1e-9 {
		t.Errorf("expected speed %v, got %v", wantSpeed, enriched.SpeedKmh)
	}
	if math.Abs(enriched.SpeedMph-enriched.SpeedKmh*0.621371) > 1e-9 {
		t.Errorf("mph conversion mismatch: %v km/h -> %v mph", enriched.SpeedKmh, enriched.SpeedMph)
	}
}

func TestDeriveMotionClassification(t *testing.T) {
	tests := []struct {
		name     string
		speedKmh *float64
		elapsed  time.Duration
		want     MotionState
	}{
		{"stationary below threshold", floatPtr(1.9), 0, MotionStationary},
		{"walking at lower bound", floatPtr(2.0), 0, MotionWalking},
		{"walking mid range", floatPtr(5.0), 0, MotionWalking},
		{"driving at lower bound", floatPtr(10.0), 0, MotionDriving},
		{"driving fast", floatPtr(120.0), 0, MotionDriving},
		{"zero supplied speed", floatPtr(0), 0, MotionStationary},
		{"no speed no elapsed", nil, 0, MotionUnknown},
		{"no speed negative elapsed", nil, -5 * time.Second, MotionUnknown},
		{"nan speed", floatPtr(math.NaN()), 0, MotionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := RawFix{Latitude: 51.5, Longitude: -0.12, SpeedKmh: tt.speedKmh}
			enriched := Derive(nil, fix, tt.elapsed, time.Now())
			if enriched.MotionState != tt.want {
				t.Errorf("expected %s, got %s", tt.want, enriched.MotionState)
			}
		})
	}
}

func TestDeriveSuppliedSpeedWins(t *testing.T) {
	prior := &Prior{Latitude: 40.0, Longitude: -74.0}
	fix := RawFix{Latitude: 41.0, Longitude: -74.0, SpeedKmh: floatPtr(3.0)}

	// Elapsed would imply a huge computed speed; the supplied value must win.
	enriched := Derive(prior, fix, time.Second, time.Now())
	if enriched.SpeedKmh != 3.0 {
		t.Errorf("expected supplied speed 3.0 to be trusted, got %v", enriched.SpeedKmh)
	}
	if enriched.MotionState != MotionWalking {
		t.Errorf("expected WALKING for 3 km/h, got %s", enriched.MotionState)
	}
}

func TestHaversineSymmetry(t *testing.T) {
	pairs := []struct {
		lat1, lon1, lat2, lon2 float64
	}{
		{40.0, -74.0, 51.5, -0.12},
		{-33.86, 151.2, 35.68, 139.69},
		{0, 0, 0, 180},
		{89.9, 10, -89.9, -170},
	}

	for _, p := range pairs {
		forward := HaversineKm(p.lat1, p.lon1, p.lat2, p.lon2)
		reverse := HaversineKm(p.lat2, p.lon2, p.lat1, p.lon1)
		if math.Abs(forward-reverse) > 1e-9 {
			t.Errorf("haversine not symmetric for %+v: %v vs %v", p, forward, reverse)
		}
		if forward < 0 {
			t.Errorf("negative distance for %+v: %v", p, forward)
		}
	}
}

func TestBearingReciprocal(t *testing.T) {
	// Forward and reverse bearings between distinct points differ; for a pure
	// east-west path on the equator they are exact reciprocals.
	forward := BearingDeg(0, 0, 0, 10)
	reverse := BearingDeg(0, 10, 0, 0)

	if math.Abs(forward-90) > 1e-9 {
		t.Errorf("expected bearing 90 going east on the equator, got %v", forward)
	}
	if math.Abs(reverse-270) > 1e-9 {
		t.Errorf("expected bearing 270 going west on the equator, got %v", reverse)
	}
}

func TestBearingRange(t *testing.T) {
	coords := []struct {
		lat1, lon1, lat2, lon2 float64
	}{
		{40, -74, 40.001, -74},
		{40, -74, 39.999, -74},
		{40, -74, 40, -74.001},
		{40, -74, 40, -73.999},
		{10, 20, -30, -40},
		{-50, 170, 50, -170},
	}

	for _, c := range coords {
		b := BearingDeg(c.lat1, c.lon1, c.lat2, c.lon2)
		if b < 0 || b >= 360 {
			t.Errorf("bearing %v outside [0, 360) for %+v", b, c)
		}
	}
}

func TestKnownDistance(t *testing.T) {
	// New York (40.7128, -74.0060) to London (51.5074, -0.1278) is ~5570 km.
	d := HaversineKm(40.7128, -74.0060, 51.5074, -0.1278)
	if math.Abs(d-5570) > 10 {
		t.Errorf("expected NY-London distance near 5570 km, got %v", d)
	}
}
