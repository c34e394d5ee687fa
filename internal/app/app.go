// Package app owns the long-lived engine objects and exposes the read
// models and commands used by the HUD control surface and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"

	"github.com/cjeanneret/WayGo/internal/config"
	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/exec"
	"github.com/cjeanneret/WayGo/internal/hw/camera"
	"github.com/cjeanneret/WayGo/internal/hw/gpio"
	"github.com/cjeanneret/WayGo/internal/hw/remote"
	"github.com/cjeanneret/WayGo/internal/logic/ar"
	"github.com/cjeanneret/WayGo/internal/logic/capture"
	"github.com/cjeanneret/WayGo/internal/logic/geometry"
	"github.com/cjeanneret/WayGo/internal/logic/pose"
	"github.com/cjeanneret/WayGo/internal/logic/session"
	"github.com/cjeanneret/WayGo/internal/metrics"
	"github.com/cjeanneret/WayGo/internal/store"
	"github.com/cjeanneret/WayGo/internal/store/photos"
	"github.com/cjeanneret/WayGo/internal/store/waypoints"
)

// DefaultViewport is the HUD size, in points, until the client reports one.
var DefaultViewport = ar.Surface{Width: 390, Height: 844}

// Notifier receives UI notifications: kind is "state", "markers",
// "capture", "zoom" or "filter".
type Notifier interface {
	Publish(kind string, data any)
}

// Options overrides the collaborators New would otherwise build from the
// configuration.
type Options struct {
	Hardware camera.Hardware // nil: camera.New(cfg.Camera)
	GPIO     gpio.Driver     // nil: no shutter button or lamp
	DB       *gorm.DB        // nil: open storage.database_path
	Meter    metric.Meter    // nil: global meter provider
	Notifier Notifier
	Provider pose.Provider // nil: static provider when location.static is set
	// Inline runs camera work and event delivery on the calling goroutine.
	Inline bool
}

// App is the application context. It is created once in main and shared
// by reference.
type App struct {
	cfg       *config.Config
	hw        camera.Hardware
	db        *gorm.DB
	ownsDB    bool
	tracker   *pose.Tracker
	provider  pose.Provider
	waypoints *waypoints.Store
	photos    *photos.Library
	overlay   *ar.Overlay
	session   *session.Controller
	pipeline  *capture.Pipeline
	metrics   *metrics.Recorder
	button    *remote.Button
	lamp      *remote.Lamp
	notifier  Notifier
	queues    []*exec.Queue

	mu        sync.RWMutex
	filter    capture.FilterMode
	arEnabled bool
	viewport  ar.Surface
	markers   []ar.Marker
	closed    bool
}

// New wires the engine from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		cfg:       cfg,
		notifier:  opts.Notifier,
		arEnabled: true,
		viewport:  DefaultViewport,
		markers:   []ar.Marker{},
	}

	a.hw = opts.Hardware
	if a.hw == nil {
		hw, err := camera.New(cfg.Camera)
		if err != nil {
			return nil, fmt.Errorf("init camera: %w", err)
		}
		a.hw = hw
	}

	a.db = opts.DB
	if a.db == nil {
		db, err := store.Open(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, err
		}
		a.db, a.ownsDB = db, true
	}
	if err := a.openStores(); err != nil {
		a.closeDB()
		return nil, err
	}

	a.tracker = pose.NewTracker(cfg.MaxFixAge())
	projector := ar.NewProjector(ar.ParamsFromConfig(cfg))
	a.overlay = ar.NewOverlay(projector, a.tracker, a.waypoints)
	debug.PrintStruct("Projection", projector.Params())

	var io, publish exec.Executor = exec.Inline{}, exec.Inline{}
	if !opts.Inline {
		ioq, pubq := exec.NewQueue("camera-io"), exec.NewQueue("session-events")
		a.queues = []*exec.Queue{ioq, pubq}
		io, publish = ioq, pubq
	}
	a.session = session.NewController(a.hw, io, publish, session.Options{
		RestartAfter:     cfg.RestartAfter(),
		MaxConfigRetries: cfg.Camera.MaxConfigRetries,
		MaxZoom:          session.DefaultMaxZoom,
	})
	if src, ok := a.hw.(camera.SignalSource); ok {
		src.OnSignal(a.session.HandleSignal)
	}

	a.pipeline = capture.NewPipeline(a.session, projector, a.photos, capture.Options{
		Format:     cfg.Capture.Format,
		Quality:    cfg.Capture.JPEGQuality,
		BadgeScale: cfg.AR.BadgeScale,
	})

	rec, err := metrics.New(opts.Meter)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.metrics = rec

	if opts.GPIO != nil {
		if err := a.initRemote(opts.GPIO); err != nil {
			a.closeDB()
			return nil, err
		}
	}

	a.provider = opts.Provider
	if a.provider == nil && cfg.Location.Static {
		a.provider = staticProvider(cfg)
	}
	return a, nil
}

func (a *App) openStores() error {
	wps, err := waypoints.New(a.db)
	if err != nil {
		return err
	}
	a.waypoints = wps
	if seed := a.cfg.Waypoints.SeedFile; seed != "" {
		list, err := waypoints.LoadFile(seed, a.cfg.Waypoints.SourceEPSG)
		if err != nil {
			return fmt.Errorf("load waypoint seed: %w", err)
		}
		if _, err := wps.Import(context.Background(), list); err != nil {
			return fmt.Errorf("import waypoint seed: %w", err)
		}
	}

	access, err := photos.ParseAccess(a.cfg.Storage.Authorization)
	if err != nil {
		return err
	}
	lib, err := photos.New(a.db, a.cfg.Storage.PhotoDir, access)
	if err != nil {
		return err
	}
	a.photos = lib
	return nil
}

func (a *App) initRemote(g gpio.Driver) error {
	if pin := a.cfg.Remote.ShutterPin; pin != 0 {
		b, err := remote.NewButton(g, pin, a.cfg.PollInterval())
		if err != nil {
			return fmt.Errorf("init shutter button: %w", err)
		}
		a.button = b
	}
	if pin := a.cfg.Remote.LampPin; pin != 0 {
		l, err := remote.NewLamp(g, pin)
		if err != nil {
			return fmt.Errorf("init status lamp: %w", err)
		}
		a.lamp = l
	}
	return nil
}

func staticProvider(cfg *config.Config) *pose.StaticProvider {
	every := time.Second
	if age := cfg.MaxFixAge(); age > 0 && age/2 < every {
		every = age / 2
	}
	return &pose.StaticProvider{
		Location: pose.Location{
			Point:              geometry.GeoPoint{Lat: cfg.Location.Lat, Lon: cfg.Location.Lon},
			Altitude:           cfg.Location.Altitude,
			HorizontalAccuracy: cfg.Location.Accuracy,
		},
		Heading: pose.Heading{
			TrueHeading: cfg.Location.Heading,
			Accuracy:    cfg.Location.HeadingAccuracy,
		},
		Every: every,
	}
}

// Run activates the camera and serves pose updates, the shutter button,
// transition bookkeeping and the live overlay refresh until ctx ends. The
// session is shut down before Run returns.
func (a *App) Run(ctx context.Context) error {
	events, cancel := a.session.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	if a.provider != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.provider.Run(ctx, a.tracker); err != nil && !errors.Is(err, context.Canceled) {
				debug.Error(fmt.Errorf("pose provider: %w", err))
			}
		}()
	}
	if a.button != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.button.Run(ctx, func() {
				go func() {
					if _, err := a.CapturePhoto(ctx); err != nil {
						debug.Error(fmt.Errorf("shutter: %w", err))
					}
				}()
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				debug.Error(fmt.Errorf("shutter button: %w", err))
			}
		}()
	}

	a.session.Activate()

	every := a.cfg.RefreshInterval()
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			a.onTransition(ctx, ev)
		case <-ticker.C:
			if _, err := a.RefreshMarkers(ctx); err != nil {
				debug.Verbose("Overlay refresh: %v", err)
			}
		case <-ctx.Done():
			wg.Wait()
			a.session.Shutdown()
			return nil
		}
	}
}

func (a *App) onTransition(ctx context.Context, ev session.Event) {
	a.metrics.Transition(ctx, ev)
	if a.lamp != nil {
		if err := a.lamp.Set(ev.To == session.Running); err != nil {
			debug.Error(fmt.Errorf("status lamp: %w", err))
		}
	}
	n := StateNotice{From: ev.From, To: ev.To, At: ev.At}
	if ev.Err != nil {
		n.Error = ev.Err.Error()
	}
	a.notify("state", n)
}

// WaitRunning blocks until the session is Running. It fails fast when
// the session is Denied or Unavailable.
func (a *App) WaitRunning(ctx context.Context) error {
	events, cancel := a.session.Subscribe()
	defer cancel()

	check := func(s session.State) (bool, error) {
		switch s {
		case session.Running:
			return true, nil
		case session.Denied, session.Unavailable:
			if err := a.session.LastError(); err != nil {
				return true, fmt.Errorf("camera %s: %w", s, err)
			}
			return true, fmt.Errorf("camera %s", s)
		}
		return false, nil
	}
	if done, err := check(a.session.State()); done {
		return err
	}
	for {
		select {
		case ev := <-events:
			if done, err := check(ev.To); done {
				return err
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for camera (%s): %w", a.session.State(), ctx.Err())
		}
	}
}

// Close shuts the session down, drains the executors and closes an owned
// database. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.session.Shutdown()
	for _, q := range a.queues {
		q.Close()
	}
	if a.lamp != nil {
		_ = a.lamp.Set(false)
	}
	return a.closeDB()
}

func (a *App) closeDB() error {
	if !a.ownsDB || a.db == nil {
		return nil
	}
	a.ownsDB = false
	return store.Close(a.db)
}

func (a *App) notify(kind string, data any) {
	if a.notifier != nil {
		a.notifier.Publish(kind, data)
	}
}
