package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/WayGo/internal/logic/ar"
)

var (
	// ErrCaptureFailed: no running session, the camera reported an error,
	// or the session went away before the still arrived.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrCaptureInFlight: a capture is already pending.
	ErrCaptureInFlight = errors.New("capture failed: another capture is in flight")
	// ErrImageProcessing: filtering or overlay baking failed; the photo is
	// kept without them.
	ErrImageProcessing = errors.New("image processing failed")
	// ErrStorageSaveFailed: the photo store refused or failed the write.
	ErrStorageSaveFailed = errors.New("photo save failed")
	// ErrStorageDenied: add-only access to the photo library was refused.
	ErrStorageDenied = errors.New("photo library access denied")
)

// inFlightError makes ErrCaptureInFlight match ErrCaptureFailed too.
type inFlightError struct{ id uuid.UUID }

func (e inFlightError) Error() string {
	return ErrCaptureInFlight.Error() + " (" + e.id.String() + ")"
}

func (e inFlightError) Is(target error) bool {
	return target == ErrCaptureInFlight || target == ErrCaptureFailed
}

// FilterMode is the processing applied to a still.
type FilterMode int

const (
	Normal FilterMode = iota
	NightVision
)

func (m FilterMode) String() string {
	if m == NightVision {
		return "night_vision"
	}
	return "normal"
}

// MarshalText renders the mode name in JSON read models.
func (m FilterMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Next cycles Normal -> NightVision -> Normal.
func (m FilterMode) Next() FilterMode {
	if m == NightVision {
		return Normal
	}
	return NightVision
}

// ParseFilterMode accepts normal, night_vision and nightvision.
func ParseFilterMode(s string) (FilterMode, error) {
	switch s {
	case "", "normal":
		return Normal, nil
	case "night_vision", "nightvision":
		return NightVision, nil
	}
	return Normal, fmt.Errorf("unknown filter mode %q", s)
}

// Request is one user capture. Snapshot is the overlay state frozen when
// the user pressed the shutter; nil means no badges are baked.
type Request struct {
	ID        uuid.UUID    `json:"id"`
	Filter    FilterMode   `json:"filter"`
	Snapshot  *ar.Snapshot `json:"snapshot,omitempty"`
	Zoom      float64      `json:"zoom"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewRequest stamps a request with a fresh ID.
func NewRequest(filter FilterMode, snap *ar.Snapshot, zoom float64) Request {
	return Request{
		ID:        uuid.New(),
		Filter:    filter,
		Snapshot:  snap,
		Zoom:      zoom,
		CreatedAt: time.Now(),
	}
}

// Photo is a processed, encoded still.
type Photo struct {
	Request  Request
	Image    *image.NRGBA
	Encoded  []byte
	Format   string
	Markers  []ar.Marker
	Degraded bool // filter or badges were dropped after a processing error
	TakenAt  time.Time
}

// StorageAccess is the photo library's answer to an add-only request.
type StorageAccess int

const (
	AccessGranted StorageAccess = iota
	AccessDenied
	AccessRestricted
)

func (a StorageAccess) String() string {
	switch a {
	case AccessGranted:
		return "granted"
	case AccessDenied:
		return "denied"
	default:
		return "restricted"
	}
}

// PhotoStore persists finished photos.
type PhotoStore interface {
	RequestAddAccess(ctx context.Context) (StorageAccess, error)
	Save(ctx context.Context, p *Photo) error
}
