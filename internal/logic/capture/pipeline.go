// Package capture turns a shutter press into a stored photo: one still
// from the running session, orientation, optional night vision, baked
// waypoint badges, then encoding and storage.
package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/hw/camera"
	"github.com/cjeanneret/WayGo/internal/imaging"
	"github.com/cjeanneret/WayGo/internal/logic/ar"
	"github.com/cjeanneret/WayGo/internal/logic/session"
)

// SessionSource is the part of the session controller the pipeline needs.
type SessionSource interface {
	ActiveSession() (camera.Session, camera.Format, bool)
	Subscribe() (<-chan session.Event, func())
}

// Options selects the output encoding and badge size.
type Options struct {
	Format     string  // imaging.FormatJPEG or imaging.FormatWebP
	Quality    int     // jpeg quality
	BadgeScale float64 // baked badge size relative to screen badges
}

// DefaultOptions returns jpeg at quality 90 with 3x badges.
func DefaultOptions() Options {
	return Options{Format: imaging.FormatJPEG, Quality: 90, BadgeScale: 3}
}

// Pipeline runs captures one at a time.
type Pipeline struct {
	sessions  SessionSource
	projector *ar.Projector
	store     PhotoStore
	opts      Options

	mu      sync.Mutex
	pending *Request
}

// NewPipeline creates a pipeline. The projector must be the one used by the
// live overlay so baked badges land where the user saw them.
func NewPipeline(sessions SessionSource, projector *ar.Projector, store PhotoStore, opts Options) *Pipeline {
	if opts.Format == "" {
		opts.Format = imaging.FormatJPEG
	}
	if opts.Quality <= 0 {
		opts.Quality = 90
	}
	if opts.BadgeScale <= 0 {
		opts.BadgeScale = 3
	}
	return &Pipeline{sessions: sessions, projector: projector, store: store, opts: opts}
}

// Pending returns the in-flight request, if any.
func (p *Pipeline) Pending() (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return Request{}, false
	}
	return *p.pending, true
}

func (p *Pipeline) claim(req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		return inFlightError{id: p.pending.ID}
	}
	p.pending = &req
	return nil
}

// release clears the slot if it still holds request id.
func (p *Pipeline) release(id uuid.UUID) {
	p.mu.Lock()
	if p.pending != nil && p.pending.ID == id {
		p.pending = nil
	}
	p.mu.Unlock()
}

// drain keeps the slot of an abandoned request until its still completes,
// or until a different session is running and the old one can no longer
// deliver.
func (p *Pipeline) drain(id uuid.UUID, issuedOn camera.Session, done <-chan shot, events <-chan session.Event, unsubscribe func()) {
	defer unsubscribe()
	defer p.release(id)
	for {
		select {
		case res := <-done:
			debug.Verbose("Capture %s: abandoned still completed (err=%v)", id, res.err)
			return
		case ev := <-events:
			if ev.To != session.Running {
				continue
			}
			if cur, _, ok := p.sessions.ActiveSession(); ok && cur != issuedOn {
				debug.Verbose("Capture %s: session replaced, slot released", id)
				return
			}
		}
	}
}

type shot struct {
	frame camera.Frame
	err   error
}

// Capture takes one still and stores it. A second call while one is
// pending fails with ErrCaptureInFlight. Once the still is requested it is
// not cancelled; ctx only bounds how long the caller waits, and the slot
// stays taken until the camera calls back.
func (p *Pipeline) Capture(ctx context.Context, req Request) (*Photo, error) {
	if err := p.claim(req); err != nil {
		return nil, err
	}
	owned := true
	defer func() {
		if owned {
			p.release(req.ID)
		}
	}()
	start := time.Now()

	// Subscribe before looking at the session so a transition between the
	// two cannot be missed.
	events, unsubscribe := p.sessions.Subscribe()

	sess, format, ok := p.sessions.ActiveSession()
	if !ok {
		unsubscribe()
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, session.ErrNotRunning)
	}

	done := make(chan shot, 1)
	err := sess.Capture(format, func(f camera.Frame, err error) {
		done <- shot{frame: f, err: err}
	})
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	debug.Verbose("Capture %s: still requested at %s", req.ID, format)

	abandon := func(cause error) (*Photo, error) {
		owned = false
		go p.drain(req.ID, sess, done, events, unsubscribe)
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, cause)
	}

	var res shot
wait:
	for {
		select {
		case res = <-done:
			unsubscribe()
			break wait
		case ev := <-events:
			if err := sessionLost(ev); err != nil {
				return abandon(err)
			}
		case <-ctx.Done():
			return abandon(ctx.Err())
		}
	}
	if res.err != nil {
		return nil, fmt.Errorf("%w: camera: %v", ErrCaptureFailed, res.err)
	}

	photo, err := p.process(req, res.frame)
	if err != nil {
		return nil, err
	}
	if err := p.save(ctx, photo); err != nil {
		return nil, err
	}
	debug.Capture(req.ID.String(), len(photo.Markers), photo.Format, len(photo.Encoded))
	debug.Elapsed("capture "+req.ID.String(), start)
	return photo, nil
}

// sessionLost maps a transition observed while waiting to the error that
// ends the capture, or nil when the transition is harmless.
func sessionLost(ev session.Event) error {
	switch ev.To {
	case session.Interrupted:
		return session.ErrSessionInterrupted
	case session.Failed, session.Uninitialized:
		if ev.Err != nil {
			return ev.Err
		}
		return fmt.Errorf("session %s", ev.To)
	}
	return nil
}

// process decodes, orients, filters and bakes. Filter or badge errors
// fall back to the oriented frame and mark the photo degraded.
func (p *Pipeline) process(req Request, frame camera.Frame) (*Photo, error) {
	raw, _, err := imaging.Decode(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	base := imaging.Orient(raw, int(frame.Orientation))

	photo := &Photo{Request: req, Format: p.opts.Format, TakenAt: time.Now()}
	img, markers, err := p.render(req, base)
	if err != nil {
		debug.Error(fmt.Errorf("capture %s: %w", req.ID, err))
		photo.Degraded = true
		img, markers = base, nil
	}
	photo.Image = img
	photo.Markers = markers

	photo.Encoded, err = imaging.EncodeBytes(img, p.opts.Format, p.opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	return photo, nil
}

func (p *Pipeline) render(req Request, base *image.NRGBA) (*image.NRGBA, []ar.Marker, error) {
	var img *image.NRGBA
	if req.Filter == NightVision {
		nv, err := imaging.NightVision(base)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: night vision: %v", ErrImageProcessing, err)
		}
		img = nv
	} else {
		img = clone(base)
	}

	if req.Snapshot == nil {
		return img, nil, nil
	}
	b := img.Bounds()
	surface := ar.Surface{Width: float64(b.Dx()), Height: float64(b.Dy())}
	markers := req.Snapshot.Project(p.projector, surface)
	badges := make([]imaging.Badge, 0, len(markers))
	for _, m := range markers {
		badges = append(badges, imaging.Badge{
			X:     m.X,
			Y:     m.Y,
			ID:    m.Waypoint.ID,
			Label: m.Label(),
			Color: m.Waypoint.Type.Color(),
		})
	}
	if err := imaging.DrawBadges(img, badges, p.opts.BadgeScale); err != nil {
		return nil, nil, fmt.Errorf("%w: badges: %v", ErrImageProcessing, err)
	}
	return img, markers, nil
}

func (p *Pipeline) save(ctx context.Context, photo *Photo) error {
	access, err := p.store.RequestAddAccess(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageSaveFailed, err)
	}
	if access != AccessGranted {
		return fmt.Errorf("%w: %w (%s)", ErrStorageSaveFailed, ErrStorageDenied, access)
	}
	if err := p.store.Save(ctx, photo); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageSaveFailed, err)
	}
	return nil
}

func clone(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
