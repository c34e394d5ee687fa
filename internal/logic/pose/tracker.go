package pose

import (
	"sync"
	"time"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/logic/geometry"
)

// Location is one position sample from the geolocation provider.
type Location struct {
	Point              geometry.GeoPoint
	Altitude           float64 // meters
	HorizontalAccuracy float64 // meters, radius of uncertainty
	Time               time.Time
}

// Heading is one compass sample: true heading in [0, 360), clockwise from north.
type Heading struct {
	TrueHeading float64
	Accuracy    float64 // degrees
	Time        time.Time
}

// Pose is the latest known location combined with the latest heading.
type Pose struct {
	Point              geometry.GeoPoint `json:"point"`
	Altitude           float64           `json:"altitude"`
	HorizontalAccuracy float64           `json:"horizontal_accuracy"`
	Heading            float64           `json:"heading"`
	HeadingAccuracy    float64           `json:"heading_accuracy"`
}

// Sink receives provider samples.
type Sink interface {
	UpdateLocation(Location)
	UpdateHeading(Heading)
}

// Tracker keeps the most recent location and heading samples.
// Each update replaces the previous value; there is no history.
type Tracker struct {
	mu        sync.RWMutex
	location  *Location
	heading   *Heading
	maxFixAge time.Duration
	now       func() time.Time
}

// NewTracker creates a tracker. A location fix older than maxFixAge is
// treated as absent; maxFixAge 0 disables the check.
func NewTracker(maxFixAge time.Duration) *Tracker {
	return &Tracker{maxFixAge: maxFixAge, now: time.Now}
}

// UpdateLocation replaces the latest location sample.
func (t *Tracker) UpdateLocation(l Location) {
	if l.Time.IsZero() {
		l.Time = t.now()
	}
	t.mu.Lock()
	t.location = &l
	t.mu.Unlock()
	debug.Trace("Pose: location %.6f,%.6f ±%.1fm", l.Point.Lat, l.Point.Lon, l.HorizontalAccuracy)
}

// UpdateHeading replaces the latest heading sample.
func (t *Tracker) UpdateHeading(h Heading) {
	if h.Time.IsZero() {
		h.Time = t.now()
	}
	h.TrueHeading = geometry.Normalize360(h.TrueHeading)
	t.mu.Lock()
	t.heading = &h
	t.mu.Unlock()
	debug.Trace("Pose: heading %.1f° ±%.1f°", h.TrueHeading, h.Accuracy)
}

// Current returns the latest pose. ok is false until both a location and a
// heading have been received, and while the location fix is stale.
func (t *Tracker) Current() (Pose, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.location == nil || t.heading == nil {
		return Pose{}, false
	}
	if t.maxFixAge > 0 && t.now().Sub(t.location.Time) > t.maxFixAge {
		return Pose{}, false
	}
	return Pose{
		Point:              t.location.Point,
		Altitude:           t.location.Altitude,
		HorizontalAccuracy: t.location.HorizontalAccuracy,
		Heading:            t.heading.TrueHeading,
		HeadingAccuracy:    t.heading.Accuracy,
	}, true
}
