package ar

import (
	"fmt"
	"image/color"

	"github.com/cjeanneret/WayGo/internal/logic/geometry"
)

// WaypointType classifies a waypoint. It only affects marker color.
type WaypointType string

const (
	Objective  WaypointType = "objective"
	Checkpoint WaypointType = "checkpoint"
	Intel      WaypointType = "intel"
	Extraction WaypointType = "extraction"
)

// ParseWaypointType validates a type name. Empty defaults to Objective.
func ParseWaypointType(s string) (WaypointType, error) {
	switch WaypointType(s) {
	case "":
		return Objective, nil
	case Objective, Checkpoint, Intel, Extraction:
		return WaypointType(s), nil
	}
	return "", fmt.Errorf("unknown waypoint type %q", s)
}

// Color returns the badge color for the type.
func (t WaypointType) Color() color.NRGBA {
	switch t {
	case Checkpoint:
		return color.NRGBA{R: 0x2e, G: 0x9c, B: 0xff, A: 0xff}
	case Intel:
		return color.NRGBA{R: 0xff, G: 0xc1, B: 0x07, A: 0xff}
	case Extraction:
		return color.NRGBA{R: 0x3c, G: 0xd0, B: 0x70, A: 0xff}
	default:
		return color.NRGBA{R: 0xff, G: 0x3b, B: 0x30, A: 0xff}
	}
}

// Waypoint is a named, typed geographic point owned by the waypoint store.
// ID is a short display code, unique within the active set.
type Waypoint struct {
	ID    string            `json:"id" yaml:"id"`
	Name  string            `json:"name" yaml:"name"`
	Point geometry.GeoPoint `json:"point" yaml:"point"`
	Type  WaypointType      `json:"type" yaml:"type"`
}
