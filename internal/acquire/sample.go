// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquire

import (
	"math"
	"time"

	"github.com/wneessen/geofix/internal/vartype"
)

const (
	// EarthRadius is the mean earth radius in meters.
	EarthRadius = 6371000.0
	// KnotsToMetersPerSecond converts a speed over ground in knots into m/s.
	KnotsToMetersPerSecond = 0.514444
)

// Sample is a single position reading produced by a Source. A Sample is a value and is never
// modified after it was emitted.
type Sample struct {
	Latitude         float64            `json:"latitude"`
	Longitude        float64            `json:"longitude"`
	AccuracyMeters   float64            `json:"accuracy"`
	Altitude         vartype.VarFloat64 `json:"altitude"`
	AltitudeAccuracy vartype.VarFloat64 `json:"altitude_accuracy"`
	Heading          vartype.VarFloat64 `json:"heading"`
	Speed            vartype.VarFloat64 `json:"speed"`
	CapturedAt       time.Time          `json:"captured_at"`
	Source           string             `json:"source"`
}

// Valid reports whether the sample carries usable WGS84 coordinates and a non-negative accuracy.
func (s Sample) Valid() bool {
	if math.IsNaN(s.Latitude) || math.IsNaN(s.Longitude) || math.IsNaN(s.AccuracyMeters) {
		return false
	}
	if math.IsInf(s.AccuracyMeters, 0) || s.AccuracyMeters < 0 {
		return false
	}
	return s.Latitude >= -90 && s.Latitude <= 90 && s.Longitude >= -180 && s.Longitude <= 180
}

// DistanceTo returns the great-circle distance in meters to another sample, using the
// haversine formula.
func (s Sample) DistanceTo(other Sample) float64 {
	dLat := (other.Latitude - s.Latitude) * math.Pi / 180
	dLon := (other.Longitude - s.Longitude) * math.Pi / 180
	lat1 := s.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Event is a single item of a position stream: either a Sample or a failure.
type Event struct {
	Sample Sample
	Err    error
}
