package ar

import (
	"github.com/cjeanneret/WayGo/internal/config"
	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/logic/geometry"
	"github.com/cjeanneret/WayGo/internal/logic/pose"
)

// Surface is the target coordinate space: screen points or image pixels.
type Surface struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Marker is a waypoint projected onto a surface for one pass.
type Marker struct {
	Waypoint      Waypoint `json:"waypoint"`
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	DistanceM     float64  `json:"distance_m"`
	RelativeAngle float64  `json:"relative_angle"`
	Visible       bool     `json:"visible"`
}

// Label returns the text drawn under a marker badge.
func (m Marker) Label() string {
	return m.Waypoint.Name + " · " + geometry.FormatDistance(m.DistanceM)
}

// Params holds the projection tuning values.
type Params struct {
	HalfFOVDeg   float64
	MaxDistanceM float64
	Band         geometry.VerticalBand
}

// DefaultParams returns a 60° half-FOV, 5000 m max distance and the 0.3/0.4 band.
func DefaultParams() Params {
	return Params{
		HalfFOVDeg:   geometry.DefaultHalfFOVDeg,
		MaxDistanceM: geometry.DefaultMaxDistanceM,
		Band:         geometry.DefaultVerticalBand,
	}
}

// ParamsFromConfig builds projection parameters from the ar section.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		HalfFOVDeg:   geometry.ResolveHalfFOV(cfg),
		MaxDistanceM: cfg.AR.MaxDistanceM,
		Band:         geometry.VerticalBand{Near: cfg.AR.NearFactor, Span: cfg.AR.SpanFactor},
	}
}

// Projector turns a pose and waypoints into markers. It holds only its
// parameters, so identical inputs always give identical output.
type Projector struct {
	params Params
}

// NewProjector creates a projector.
func NewProjector(p Params) *Projector {
	return &Projector{params: p}
}

// Params returns the projection parameters.
func (p *Projector) Params() Params { return p.params }

// Project returns the visible markers in waypoint input order. Waypoints
// outside the field of view are omitted. A nil pose yields an empty list.
func (p *Projector) Project(current *pose.Pose, waypoints []Waypoint, surface Surface) []Marker {
	markers := make([]Marker, 0, len(waypoints))
	if current == nil {
		return markers
	}

	for _, wp := range waypoints {
		bearing := geometry.Bearing(current.Point, wp.Point)
		rel := geometry.RelativeAngle(bearing, current.Heading)
		if !geometry.IsVisible(rel, p.params.HalfFOVDeg) {
			continue
		}
		dist := geometry.DistanceMeters(current.Point, wp.Point)
		m := Marker{
			Waypoint:      wp,
			X:             geometry.HorizontalPosition(rel, p.params.HalfFOVDeg, surface.Width),
			Y:             p.params.Band.Position(dist, p.params.MaxDistanceM, surface.Height),
			DistanceM:     dist,
			RelativeAngle: rel,
			Visible:       true,
		}
		debug.Marker(wp.ID, m.X, m.Y, dist)
		markers = append(markers, m)
	}
	return markers
}
