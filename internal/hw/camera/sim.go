package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/WayGo/internal/config"
	"github.com/cjeanneret/WayGo/internal/debug"
)

// ErrNotRunning is returned by Capture on a stopped or unbound session.
var ErrNotRunning = errors.New("session not running")

// New builds the hardware named by camera.type.
func New(cfg config.CameraConfig) (Hardware, error) {
	switch cfg.Type {
	case "sim":
		auth, err := ParseAuthorization(cfg.Authorization)
		if err != nil {
			return nil, err
		}
		return NewSim(SimOptions{
			Authorization:    auth,
			GrantOnPrompt:    true,
			NoDevice:         cfg.NoDevice,
			Width:            cfg.WidthPx,
			Height:           cfg.HeightPx,
			MaxZoom:          cfg.MaxZoom,
			FramesDir:        cfg.FramesDir,
			CaptureDelay:     time.Duration(cfg.CaptureDelayMs) * time.Millisecond,
			PointsOfInterest: true,
		}), nil
	}
	return nil, fmt.Errorf("unsupported camera type %q", cfg.Type)
}

// SimOptions configures the simulated camera.
type SimOptions struct {
	Authorization    Authorization
	GrantOnPrompt    bool // answer to RequestAccess when NotDetermined
	NoDevice         bool
	Width, Height    int
	MaxZoom          float64
	FramesDir        string // jpeg/png/tga files served in name order; empty = test pattern
	CaptureDelay     time.Duration
	Orientation      Orientation
	PointsOfInterest bool // focus/exposure points supported
}

// SimStats counts calls made on the simulator.
type SimStats struct {
	Binds, Unbinds, Starts, Stops, Captures int
}

// Sim is an in-process camera stack with failure injection. It serves
// bench runs without a camera and drives the controller tests.
type Sim struct {
	opts   SimOptions
	device *SimDevice

	mu          sync.Mutex
	auth        Authorization
	failBind    error
	failStart   error
	failCapture error
	hold        bool
	held        []func()
	stats       SimStats
	frameIdx    int
	handler     func(Signal)
}

// NewSim creates a simulator.
func NewSim(opts SimOptions) *Sim {
	if opts.Width <= 0 {
		opts.Width = 4032
	}
	if opts.Height <= 0 {
		opts.Height = 3024
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = 8
	}
	s := &Sim{opts: opts, auth: opts.Authorization}
	s.device = &SimDevice{
		id: "sim:back",
		formats: []Format{
			{Width: opts.Width / 2, Height: opts.Height / 2},
			{Width: opts.Width, Height: opts.Height},
			{Width: opts.Width / 4, Height: opts.Height / 4},
		},
		maxZoom: opts.MaxZoom,
		poi:     opts.PointsOfInterest,
		zoom:    1,
	}
	return s
}

// Device returns the single simulated device.
func (s *Sim) Device() *SimDevice { return s.device }

func (s *Sim) Authorization() Authorization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *Sim) RequestAccess() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auth == NotDetermined {
		if s.opts.GrantOnPrompt {
			s.auth = Authorized
		} else {
			s.auth = Denied
		}
		debug.Verbose("Camera(sim): access prompt answered %s", s.auth)
	}
	return s.auth == Authorized, nil
}

// SetAuthorization changes the access state, e.g. after the user visits
// system settings.
func (s *Sim) SetAuthorization(a Authorization) {
	s.mu.Lock()
	s.auth = a
	s.mu.Unlock()
}

func (s *Sim) Devices() []Device {
	if s.opts.NoDevice {
		return nil
	}
	return []Device{s.device}
}

func (s *Sim) Bind(dev Device, f Format) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Binds++
	if err := s.failBind; err != nil {
		s.failBind = nil
		return nil, err
	}
	debug.Verbose("Camera(sim): bound %s at %s", dev.ID(), f)
	return &simSession{sim: s, format: f}, nil
}

// OnSignal registers the interruption/runtime error handler.
func (s *Sim) OnSignal(handler func(Signal)) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Emit delivers a hardware signal to the registered handler.
func (s *Sim) Emit(sig Signal) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	debug.Verbose("Camera(sim): signal %s", sig.Kind)
	if h != nil {
		h(sig)
	}
}

// FailNextBind makes the next Bind return err.
func (s *Sim) FailNextBind(err error) {
	s.mu.Lock()
	s.failBind = err
	s.mu.Unlock()
}

// FailNextStart makes the next Start (including a resume) return err.
func (s *Sim) FailNextStart(err error) {
	s.mu.Lock()
	s.failStart = err
	s.mu.Unlock()
}

// FailNextCapture makes the next capture complete with err.
func (s *Sim) FailNextCapture(err error) {
	s.mu.Lock()
	s.failCapture = err
	s.mu.Unlock()
}

// HoldCaptures keeps capture completions pending until ReleaseCaptures.
func (s *Sim) HoldCaptures() {
	s.mu.Lock()
	s.hold = true
	s.mu.Unlock()
}

// ReleaseCaptures completes every held capture and stops holding.
func (s *Sim) ReleaseCaptures() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.hold = false
	s.mu.Unlock()
	for _, complete := range held {
		complete()
	}
}

// Stats returns a copy of the call counters.
func (s *Sim) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sim) nextFrame(f Format) ([]byte, error) {
	if s.opts.FramesDir == "" {
		return testPattern(f.Width, f.Height)
	}
	files, err := frameFiles(s.opts.FramesDir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	path := files[s.frameIdx%len(files)]
	s.frameIdx++
	s.mu.Unlock()
	return os.ReadFile(path)
}

func frameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".tga":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// testPattern renders a sky/ground split with color bars and encodes it
// as JPEG, like a sensor would deliver.
func testPattern(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bars := []color.RGBA{
		{192, 192, 192, 255}, {192, 192, 0, 255}, {0, 192, 192, 255},
		{0, 192, 0, 255}, {192, 0, 192, 255}, {192, 0, 0, 255}, {0, 0, 192, 255},
	}
	horizon := h * 2 / 3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c color.RGBA
			if y < horizon {
				shade := 90 + 120*y/horizon
				c = color.RGBA{uint8(shade / 2), uint8(shade * 3 / 4), uint8(shade), 255}
			} else {
				c = bars[x*len(bars)/w]
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type simSession struct {
	sim     *Sim
	format  Format
	mu      sync.Mutex
	running bool
	unbound bool
}

func (ss *simSession) Start() error {
	ss.sim.mu.Lock()
	ss.sim.stats.Starts++
	err := ss.sim.failStart
	ss.sim.failStart = nil
	ss.sim.mu.Unlock()
	if err != nil {
		return err
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.unbound {
		return errors.New("session unbound")
	}
	ss.running = true
	return nil
}

func (ss *simSession) Stop() error {
	ss.sim.mu.Lock()
	ss.sim.stats.Stops++
	ss.sim.mu.Unlock()

	ss.mu.Lock()
	ss.running = false
	ss.mu.Unlock()
	return nil
}

func (ss *simSession) Running() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.running
}

func (ss *simSession) Capture(f Format, done func(Frame, error)) error {
	if !ss.Running() {
		return ErrNotRunning
	}
	s := ss.sim
	s.mu.Lock()
	s.stats.Captures++
	failErr := s.failCapture
	s.failCapture = nil
	s.mu.Unlock()

	complete := func() {
		if failErr != nil {
			done(Frame{}, failErr)
			return
		}
		data, err := s.nextFrame(f)
		done(Frame{Data: data, Orientation: s.opts.Orientation}, err)
	}

	s.mu.Lock()
	if s.hold {
		s.held = append(s.held, complete)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	go func() {
		time.Sleep(s.opts.CaptureDelay)
		complete()
	}()
	return nil
}

func (ss *simSession) Unbind() error {
	ss.sim.mu.Lock()
	ss.sim.stats.Unbinds++
	ss.sim.mu.Unlock()

	ss.mu.Lock()
	ss.running = false
	ss.unbound = true
	ss.mu.Unlock()
	return nil
}

// SimDevice is the simulated back camera.
type SimDevice struct {
	id      string
	formats []Format
	maxZoom float64
	poi     bool

	mu         sync.Mutex
	zoom       float64
	focus      Point
	exposure   Point
	retriggers int
}

func (d *SimDevice) ID() string        { return d.id }
func (d *SimDevice) Formats() []Format { return append([]Format(nil), d.formats...) }
func (d *SimDevice) MaxZoom() float64  { return d.maxZoom }

func (d *SimDevice) SetZoom(factor float64) error {
	if factor < 1 || factor > d.maxZoom {
		return fmt.Errorf("zoom %.2f outside [1, %.2f]", factor, d.maxZoom)
	}
	d.mu.Lock()
	d.zoom = factor
	d.mu.Unlock()
	return nil
}

func (d *SimDevice) FocusPointSupported() bool    { return d.poi }
func (d *SimDevice) ExposurePointSupported() bool { return d.poi }

func (d *SimDevice) SetFocusPoint(p Point) error {
	d.mu.Lock()
	d.focus = p
	d.mu.Unlock()
	return nil
}

func (d *SimDevice) SetExposurePoint(p Point) error {
	d.mu.Lock()
	d.exposure = p
	d.mu.Unlock()
	return nil
}

func (d *SimDevice) Retrigger() error {
	d.mu.Lock()
	d.retriggers++
	d.mu.Unlock()
	return nil
}

// Zoom returns the factor last applied to the device.
func (d *SimDevice) Zoom() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zoom
}

// FocusPoint returns the last focus and exposure points.
func (d *SimDevice) FocusPoint() (focus, exposure Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focus, d.exposure
}

// Retriggers counts AF/AE re-triggers.
func (d *SimDevice) Retriggers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retriggers
}
