package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/hw/camera"
	"github.com/cjeanneret/WayGo/internal/logic/ar"
	"github.com/cjeanneret/WayGo/internal/logic/capture"
	"github.com/cjeanneret/WayGo/internal/logic/pose"
	"github.com/cjeanneret/WayGo/internal/logic/session"
	"github.com/cjeanneret/WayGo/internal/store/photos"
)

// ErrInvalidViewport is returned for a non-positive or non-finite size.
var ErrInvalidViewport = errors.New("invalid viewport")

// View is the HUD read model.
type View struct {
	State     session.State      `json:"state"`
	Error     string             `json:"error,omitempty"`
	Zoom      float64            `json:"zoom"`
	Filter    capture.FilterMode `json:"filter"`
	AREnabled bool               `json:"ar_enabled"`
	Capturing bool               `json:"capturing"`
	Viewport  ar.Surface         `json:"viewport"`
	Pose      *pose.Pose         `json:"pose,omitempty"`
	Markers   []ar.Marker        `json:"markers"`
	Counts    map[string]int64   `json:"counts,omitempty"`
}

// StateNotice is published on every session transition.
type StateNotice struct {
	From  session.State `json:"from"`
	To    session.State `json:"to"`
	Error string        `json:"error,omitempty"`
	At    time.Time     `json:"at"`
}

// CaptureNotice is published after every capture attempt.
type CaptureNotice struct {
	ID       string `json:"id"`
	Format   string `json:"format,omitempty"`
	Markers  int    `json:"markers"`
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// View returns the current read model.
func (a *App) View() View {
	a.mu.RLock()
	v := View{
		Filter:    a.filter,
		AREnabled: a.arEnabled,
		Viewport:  a.viewport,
		Markers:   append([]ar.Marker(nil), a.markers...),
	}
	a.mu.RUnlock()
	if v.Markers == nil {
		v.Markers = []ar.Marker{}
	}

	v.State = a.session.State()
	if err := a.session.LastError(); err != nil {
		v.Error = err.Error()
	}
	v.Zoom = a.session.ZoomLevel()
	if p, ok := a.tracker.Current(); ok {
		v.Pose = &p
	}
	_, v.Capturing = a.pipeline.Pending()
	v.Counts = a.metrics.Counts()
	return v
}

// State returns the session state.
func (a *App) State() session.State { return a.session.State() }

// Activate is called when the camera screen appears.
func (a *App) Activate() { a.session.Activate() }

// RequestPermission re-offers the camera access request.
func (a *App) RequestPermission() { a.session.RequestPermission() }

// CapturePhoto captures with the current filter. While the overlay is
// enabled the pose and waypoints are frozen now and baked into the photo.
func (a *App) CapturePhoto(ctx context.Context) (*capture.Photo, error) {
	a.mu.RLock()
	filter, arOn := a.filter, a.arEnabled
	a.mu.RUnlock()

	var snap *ar.Snapshot
	if arOn {
		s, err := a.overlay.Snapshot(ctx)
		if err != nil {
			debug.Error(fmt.Errorf("capture without badges: %w", err))
		} else {
			snap = s
		}
	}

	req := capture.NewRequest(filter, snap, a.session.ZoomLevel())
	start := time.Now()
	photo, err := a.pipeline.Capture(ctx, req)
	a.metrics.Capture(ctx, photo, err, time.Since(start))

	n := CaptureNotice{ID: req.ID.String()}
	if err != nil {
		n.Error = err.Error()
		a.notify("capture", n)
		return nil, err
	}
	n.Format, n.Markers, n.Degraded = photo.Format, len(photo.Markers), photo.Degraded
	a.notify("capture", n)
	return photo, nil
}

// CycleFilter switches to the next filter mode and returns it.
func (a *App) CycleFilter() capture.FilterMode {
	a.mu.Lock()
	a.filter = a.filter.Next()
	m := a.filter
	a.mu.Unlock()
	a.notify("filter", m)
	return m
}

// SetFilter selects a filter mode.
func (a *App) SetFilter(m capture.FilterMode) {
	a.mu.Lock()
	a.filter = m
	a.mu.Unlock()
	a.notify("filter", m)
}

// UpdateZoom applies a live pinch multiplier.
func (a *App) UpdateZoom(multiplier float64) (float64, error) {
	z, err := a.session.UpdateZoom(multiplier)
	if err == nil {
		a.notify("zoom", z)
	}
	return z, err
}

// FinalizeZoom ends a pinch gesture.
func (a *App) FinalizeZoom(multiplier float64) (float64, error) {
	z, err := a.session.FinalizeZoom(multiplier)
	if err == nil {
		a.notify("zoom", z)
	}
	return z, err
}

// ResetZoom returns to 1x.
func (a *App) ResetZoom() error {
	if err := a.session.ResetZoom(); err != nil {
		return err
	}
	a.notify("zoom", 1.0)
	return nil
}

// FocusAt focuses on a tap at (x, y) in viewport points.
func (a *App) FocusAt(x, y float64) (camera.Point, error) {
	a.mu.RLock()
	vp := a.viewport
	a.mu.RUnlock()
	return a.session.FocusAt(x, y, vp.Width, vp.Height)
}

// ToggleAR enables or disables the overlay and returns the new value.
// Disabling clears the markers.
func (a *App) ToggleAR() bool {
	a.mu.Lock()
	a.arEnabled = !a.arEnabled
	on := a.arEnabled
	if !on {
		a.markers = []ar.Marker{}
	}
	a.mu.Unlock()
	if !on {
		a.notify("markers", []ar.Marker{})
	}
	return on
}

// SetViewport records the HUD size used for markers and tap-to-focus.
func (a *App) SetViewport(width, height float64) error {
	if !(width > 0 && height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return fmt.Errorf("%w: %vx%v", ErrInvalidViewport, width, height)
	}
	a.mu.Lock()
	a.viewport = ar.Surface{Width: width, Height: height}
	a.mu.Unlock()
	return nil
}

// UpdateLocation feeds a location sample to the tracker.
func (a *App) UpdateLocation(l pose.Location) { a.tracker.UpdateLocation(l) }

// UpdateHeading feeds a compass sample to the tracker.
func (a *App) UpdateHeading(h pose.Heading) { a.tracker.UpdateHeading(h) }

// RefreshMarkers runs the live projection pass and publishes the result.
func (a *App) RefreshMarkers(ctx context.Context) ([]ar.Marker, error) {
	a.mu.RLock()
	on, vp := a.arEnabled, a.viewport
	a.mu.RUnlock()

	markers := []ar.Marker{}
	if on {
		m, err := a.overlay.Refresh(ctx, vp)
		if err != nil {
			return nil, err
		}
		markers = m
	}

	a.mu.Lock()
	a.markers = markers
	a.mu.Unlock()
	a.notify("markers", markers)
	return markers, nil
}

// Markers returns the markers of the last live pass.
func (a *App) Markers() []ar.Marker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]ar.Marker{}, a.markers...)
}

// Waypoints lists the active set.
func (a *App) Waypoints(ctx context.Context) ([]ar.Waypoint, error) {
	return a.waypoints.Snapshot(ctx)
}

// UpsertWaypoint adds or edits a waypoint.
func (a *App) UpsertWaypoint(ctx context.Context, wp ar.Waypoint) error {
	return a.waypoints.Upsert(ctx, wp)
}

// DeleteWaypoint removes a waypoint.
func (a *App) DeleteWaypoint(ctx context.Context, id string) error {
	return a.waypoints.Delete(ctx, id)
}

// Photo returns a saved photo's index entry and file path.
func (a *App) Photo(ctx context.Context, id string) (photos.Entry, string, error) {
	e, err := a.photos.Lookup(ctx, id)
	if err != nil {
		return photos.Entry{}, "", err
	}
	return e, a.photos.Path(e), nil
}

// Photos lists the most recent photos.
func (a *App) Photos(ctx context.Context, limit int) ([]photos.Entry, error) {
	return a.photos.List(ctx, limit)
}

// Hardware exposes the camera stack, e.g. to inject simulator signals.
func (a *App) Hardware() camera.Hardware { return a.hw }
