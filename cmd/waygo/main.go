package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/WayGo/internal/app"
	"github.com/cjeanneret/WayGo/internal/config"
	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/hw/gpio"
	"github.com/cjeanneret/WayGo/internal/logic/capture"
	"github.com/cjeanneret/WayGo/internal/web"
)

// overrides holds CLI values that replace config defaults. Zero means "use config".
type overrides struct {
	HalfFOVDeg   float64
	MaxDistanceM float64
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start the HUD server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	once := flag.Bool("capture", false, "activate the camera, capture one photo and exit")
	filter := flag.String("filter", "normal", "capture filter: normal or night_vision")
	timeout := flag.Duration("timeout", 10*time.Second, "with -capture: how long to wait for the camera")
	halfFOVDeg := flag.Float64("half_fov_deg", 0, "override visibility half-angle in degrees (1-180)")
	maxDistanceM := flag.Float64("max_distance_m", 0, "override the distance mapped to the top of the marker band")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := validateCLIOverrides(*halfFOVDeg, *maxDistanceM); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides{HalfFOVDeg: *halfFOVDeg, MaxDistanceM: *maxDistanceM})
	mode, err := capture.ParseFilterMode(*filter)
	if err != nil {
		log.Fatalf("invalid -filter: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	var broadcaster *web.Broadcaster
	var notifier app.Notifier
	if webPort.port() > 0 {
		broadcaster = web.NewBroadcaster()
		notifier = broadcaster
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	debug.Step(2, "Wiring engine")
	a, err := app.New(cfg, app.Options{GPIO: gpioDriver, Notifier: notifier})
	if err != nil {
		log.Fatalf("init engine failed: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("closing engine failed: %v", err)
		}
	}()
	a.SetFilter(mode)

	switch {
	case *once:
		debug.Step(3, "One-shot capture")
		photo, err := captureOnce(ctx, a, *timeout, cfg.Location.Static)
		if err != nil {
			log.Fatalf("capture failed: %v", err)
		}
		entry, path, err := a.Photo(ctx, photo.Request.ID.String())
		if err != nil {
			log.Fatalf("capture stored but not indexed: %v", err)
		}
		fmt.Printf("%s %dx%d markers=%d degraded=%v\n", path, entry.Width, entry.Height, entry.Markers, entry.Degraded)

	case webPort.port() > 0:
		debug.Step(3, "Starting HUD server")
		srv := web.NewServer(fmt.Sprintf(":%d", webPort.port()), a, broadcaster)
		if err := serve(ctx, a, srv.Run); err != nil {
			log.Fatalf("web server: %v", err)
		}

	default:
		debug.Step(3, "Running headless")
		if err := a.Run(ctx); err != nil {
			log.Fatalf("engine: %v", err)
		}
	}
}

// serve runs the engine loop next to the HTTP server until ctx ends or the
// server fails.
func serve(ctx context.Context, a *app.App, runServer func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() { engineDone <- a.Run(ctx) }()

	err := runServer(ctx)
	cancel()
	if engineErr := <-engineDone; err == nil {
		err = engineErr
	}
	return err
}

// captureOnce activates the camera, waits until it runs and takes one
// photo. With a static location the first pose is awaited so the photo
// carries badges.
func captureOnce(ctx context.Context, a *app.App, timeout time.Duration, awaitPose bool) (*capture.Photo, error) {
	runCtx, stop := context.WithCancel(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- a.Run(runCtx) }()
	defer func() {
		stop()
		<-engineDone
	}()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.WaitRunning(waitCtx); err != nil {
		return nil, err
	}
	if awaitPose {
		if err := waitPose(waitCtx, a); err != nil {
			return nil, err
		}
	}
	return a.CapturePhoto(waitCtx)
}

func waitPose(ctx context.Context, a *app.App) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for a.View().Pose == nil {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("waiting for pose: %w", ctx.Err())
		}
	}
	return nil
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(halfFOV, maxDistance float64) error {
	if halfFOV != 0 {
		if math.IsNaN(halfFOV) || math.IsInf(halfFOV, 0) || halfFOV <= 0 || halfFOV > 180 {
			return fmt.Errorf("half_fov_deg must be between 1 and 180, got %g", halfFOV)
		}
	}
	if maxDistance != 0 {
		if math.IsNaN(maxDistance) || math.IsInf(maxDistance, 0) || maxDistance <= 0 {
			return errors.New("max_distance_m must be a positive number")
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.HalfFOVDeg > 0 {
		cfg.AR.HalfFOVDeg = o.HalfFOVDeg
	}
	if o.MaxDistanceM > 0 {
		cfg.AR.MaxDistanceM = o.MaxDistanceM
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
