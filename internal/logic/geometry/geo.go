package geometry

import (
	"fmt"
	"math"
)

const (
	// DefaultHalfFOVDeg is half of the 120° horizontal field used for visibility.
	DefaultHalfFOVDeg = 60.0
	// DefaultMaxDistanceM is the distance at which markers reach the top of their band.
	DefaultMaxDistanceM = 5000.0
	// EarthRadiusM is the mean Earth radius used by the haversine distance.
	EarthRadiusM = 6371008.8
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// VerticalBand maps distance onto a fraction of the surface height:
// nearest targets sit at Near, the farthest at Near+Span.
type VerticalBand struct {
	Near float64
	Span float64
}

// DefaultVerticalBand places markers between 30% and 70% of the surface height.
var DefaultVerticalBand = VerticalBand{Near: 0.3, Span: 0.4}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// Normalize360 folds any angle into [0, 360).
func Normalize360(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// Bearing returns the initial great-circle bearing from one point to another,
// in degrees clockwise from true north, in [0, 360).
// Formula: θ = atan2(sin Δλ × cos φ2, cos φ1 × sin φ2 − sin φ1 × cos φ2 × cos Δλ)
// Identical points give 0.
func Bearing(from, to GeoPoint) float64 {
	φ1 := toRad(from.Lat)
	φ2 := toRad(to.Lat)
	Δλ := toRad(to.Lon - from.Lon)

	x := math.Sin(Δλ) * math.Cos(φ2)
	y := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	return Normalize360(toDeg(math.Atan2(x, y)))
}

// RelativeAngle returns the signed offset of a bearing from the current
// heading, in [-180, 180]. 0 means dead ahead, negative is to the left.
func RelativeAngle(bearing, heading float64) float64 {
	d := Normalize360(bearing) - Normalize360(heading)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

// IsVisible reports whether a relative angle falls inside the field of view.
// The boundary is inclusive.
func IsVisible(relativeAngle, halfFOV float64) bool {
	return math.Abs(relativeAngle) <= halfFOV
}

// HorizontalPosition maps a relative angle in [-halfFOV, halfFOV] linearly
// onto [0, width].
func HorizontalPosition(relativeAngle, halfFOV, width float64) float64 {
	return ((relativeAngle + halfFOV) / (2 * halfFOV)) * width
}

// VerticalPosition places a target by distance using DefaultVerticalBand.
func VerticalPosition(distanceM, maxDistanceM, height float64) float64 {
	return DefaultVerticalBand.Position(distanceM, maxDistanceM, height)
}

// Position returns the y coordinate for a target at distanceM. Nearer targets
// sit lower in the band, farther ones higher; beyond maxDistanceM the value
// is clamped, not extrapolated.
func (b VerticalBand) Position(distanceM, maxDistanceM, height float64) float64 {
	factor := 1.0
	if maxDistanceM > 0 {
		factor = clamp(distanceM/maxDistanceM, 0, 1)
	}
	return height * (b.Near + factor*b.Span)
}

// DistanceMeters returns the haversine ground distance between two points.
// Altitude is ignored.
func DistanceMeters(a, b GeoPoint) float64 {
	φ1 := toRad(a.Lat)
	φ2 := toRad(b.Lat)
	Δφ := toRad(b.Lat - a.Lat)
	Δλ := toRad(b.Lon - a.Lon)

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

// FormatDistance renders a distance for marker labels:
// under 1000 m as whole meters, otherwise kilometers with one decimal.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
