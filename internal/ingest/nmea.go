package ingest

import (
	"fmt"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/device-track/dtc/internal/telemetry"
)

const knotsToKmh = 1.852

// parseNMEAFix decodes an RMC sentence into a raw fix. Sentences other than
// RMC and fixes the receiver flags invalid are rejected.
func parseNMEAFix(payload []byte) (telemetry.RawFix, error) {
	sentence, err := nmea.Parse(strings.TrimSpace(string(payload)))
	if err != nil {
		return telemetry.RawFix{}, fmt.Errorf("failed to parse NMEA sentence: %w", err)
	}

	rmc, ok := sentence.(nmea.RMC)
	if !ok {
		return telemetry.RawFix{}, fmt.Errorf("unsupported NMEA sentence type %s", sentence.DataType())
	}
	if rmc.Validity != nmea.ValidRMC {
		return telemetry.RawFix{}, fmt.Errorf("receiver reports no valid fix")
	}

	fix := telemetry.RawFix{
		Latitude:  rmc.Latitude,
		Longitude: rmc.Longitude,
	}

	speedKmh := rmc.Speed * knotsToKmh
	fix.SpeedKmh = &speedKmh
	heading := rmc.Course
	fix.Heading = &heading

	if rmc.Date.Valid && rmc.Time.Valid {
		ts := rmcTimestamp(rmc.Date, rmc.Time).UnixMilli()
		fix.Timestamp = &ts
	}

	return fix, nil
}

// rmcTimestamp combines the sentence's two-digit date and UTC time of day.
// Years below 80 are taken as 20xx, the rest as 19xx.
func rmcTimestamp(d nmea.Date, t nmea.Time) time.Time {
	year := 2000 + d.YY
	if d.YY >= 80 {
		year = 1900 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
