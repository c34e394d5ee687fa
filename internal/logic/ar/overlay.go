package ar

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/WayGo/internal/logic/pose"
)

// WaypointSource gives read-only access to the active waypoint set.
type WaypointSource interface {
	Snapshot(ctx context.Context) ([]Waypoint, error)
}

// PoseSource reports the latest pose, if any.
type PoseSource interface {
	Current() (pose.Pose, bool)
}

// Snapshot freezes the pose and the waypoint list at one instant so a
// capture is baked against what the user saw, not against the live pose.
type Snapshot struct {
	Pose      *pose.Pose `json:"pose,omitempty"`
	Waypoints []Waypoint `json:"waypoints"`
	TakenAt   time.Time  `json:"taken_at"`
}

// Project runs the projector against the frozen inputs.
func (s *Snapshot) Project(p *Projector, surface Surface) []Marker {
	if s == nil {
		return []Marker{}
	}
	return p.Project(s.Pose, s.Waypoints, surface)
}

// Overlay wires a projector to its live inputs.
type Overlay struct {
	projector *Projector
	poses     PoseSource
	waypoints WaypointSource
}

// NewOverlay creates an overlay.
func NewOverlay(p *Projector, poses PoseSource, waypoints WaypointSource) *Overlay {
	return &Overlay{projector: p, poses: poses, waypoints: waypoints}
}

// Projector returns the projector shared by the live and baked passes.
func (o *Overlay) Projector() *Projector { return o.projector }

// Snapshot captures the current pose and waypoints.
func (o *Overlay) Snapshot(ctx context.Context) (*Snapshot, error) {
	wps, err := o.waypoints.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot waypoints: %w", err)
	}
	snap := &Snapshot{Waypoints: wps, TakenAt: time.Now()}
	if p, ok := o.poses.Current(); ok {
		snap.Pose = &p
	}
	return snap, nil
}

// Refresh is the live pass: snapshot, then project onto the surface.
func (o *Overlay) Refresh(ctx context.Context, surface Surface) ([]Marker, error) {
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Project(o.projector, surface), nil
}
