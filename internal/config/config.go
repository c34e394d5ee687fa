package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// ARConfig tunes the waypoint projection and the baked overlay.
type ARConfig struct {
	HalfFOVDeg   float64 `yaml:"half_fov_deg"`   // visibility half-angle; 0 = derive from lens/sensor, else 60
	MaxDistanceM float64 `yaml:"max_distance_m"` // distance mapped to the top of the marker band (default 5000)
	NearFactor   float64 `yaml:"near_factor"`    // band bottom as a fraction of height (default 0.3)
	SpanFactor   float64 `yaml:"span_factor"`    // band height as a fraction of height (default 0.4)
	BadgeScale   float64 `yaml:"badge_scale"`    // baked badge size relative to screen badges (default 3)
	RefreshMs    int     `yaml:"refresh_ms"`     // live overlay refresh period (default 100)
}

// LensConfig describes the mounted lens. Optional; used to derive the FOV.
type LensConfig struct {
	Name          string  `yaml:"name"`
	FocalLengthMm float64 `yaml:"focal_length_mm"`
}

// SensorConfig is optional: physical sensor size in mm.
type SensorConfig struct {
	WidthMm  float64 `yaml:"width_mm"`
	HeightMm float64 `yaml:"height_mm"`
}

// CameraConfig describes the capture hardware.
// Type selects a concrete implementation (currently only "sim").
type CameraConfig struct {
	Type             string  `yaml:"type"`               // e.g., "sim"
	FramesDir        string  `yaml:"frames_dir"`         // sim: directory of jpeg/png/tga frames; empty = test pattern
	WidthPx          int     `yaml:"width_px"`           // sim sensor width (default 4032)
	HeightPx         int     `yaml:"height_px"`          // sim sensor height (default 3024)
	MaxZoom          float64 `yaml:"max_zoom"`           // device-reported max zoom (default 8)
	NoDevice         bool    `yaml:"no_device"`          // sim: report no capture device
	Authorization    string  `yaml:"authorization"`      // sim: granted, denied, restricted, prompt
	CaptureDelayMs   int     `yaml:"capture_delay_ms"`   // sim: still capture latency (default 150)
	RestartAfterMs   int     `yaml:"restart_after_ms"`   // force restart when stuck outside running (default 1000)
	MaxConfigRetries int     `yaml:"max_config_retries"` // automatic retries after a configuration failure (default 1)
}

// CaptureConfig selects the output encoding.
type CaptureConfig struct {
	Format      string `yaml:"format"`       // jpeg or webp (default jpeg)
	JPEGQuality int    `yaml:"jpeg_quality"` // 1-100 (default 90)
}

// StorageConfig points at the on-device photo library and database.
type StorageConfig struct {
	DatabasePath  string `yaml:"database_path"` // sqlite file shared by waypoints and photo index
	PhotoDir      string `yaml:"photo_dir"`
	Authorization string `yaml:"authorization"` // granted, denied or restricted
}

// WaypointsConfig describes how the waypoint store is seeded.
type WaypointsConfig struct {
	SeedFile   string `yaml:"seed_file"`   // .yaml or .geojson, imported at startup when set
	SourceEPSG int    `yaml:"source_epsg"` // CRS of seed coordinates (default 4326)
}

// LocationConfig holds a fixed pose for bench use and the staleness limit.
type LocationConfig struct {
	Static          bool    `yaml:"static"`
	Lat             float64 `yaml:"lat"`
	Lon             float64 `yaml:"lon"`
	Altitude        float64 `yaml:"altitude"`
	Accuracy        float64 `yaml:"accuracy"`
	Heading         float64 `yaml:"heading"`
	HeadingAccuracy float64 `yaml:"heading_accuracy"`
	MaxFixAgeMs     int     `yaml:"max_fix_age_ms"` // 0 = fixes never go stale
}

// RemoteConfig wires an optional GPIO shutter button and status lamp.
type RemoteConfig struct {
	ShutterPin int `yaml:"shutter_pin"` // BCM pin, 0 = not used. Active LOW with pull-up.
	LampPin    int `yaml:"lamp_pin"`    // BCM pin, 0 = not used. HIGH = lit.
	PollMs     int `yaml:"poll_ms"`     // button poll period (default 20)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	AR        ARConfig        `yaml:"ar"`
	Lens      LensConfig      `yaml:"lens"`
	Sensor    *SensorConfig   `yaml:"sensor,omitempty"` // optional
	Camera    CameraConfig    `yaml:"camera"`
	Capture   CaptureConfig   `yaml:"capture"`
	Storage   StorageConfig   `yaml:"storage"`
	Waypoints WaypointsConfig `yaml:"waypoints"`
	Location  LocationConfig  `yaml:"location"`
	Remote    RemoteConfig    `yaml:"remote"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located directly in a
// "configs" directory, and rejects any path containing "..".
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults validates the configuration and fills unset values.
func (c *Config) applyDefaults() error {
	if c.Camera.Type == "" {
		return fmt.Errorf("camera.type is required")
	}

	// AR projection
	if c.AR.HalfFOVDeg < 0 || c.AR.HalfFOVDeg > 180 {
		return fmt.Errorf("ar.half_fov_deg must be between 0 and 180, got %.2f", c.AR.HalfFOVDeg)
	}
	if c.AR.MaxDistanceM < 0 {
		return fmt.Errorf("ar.max_distance_m must be >= 0, got %.2f", c.AR.MaxDistanceM)
	}
	if c.AR.MaxDistanceM == 0 {
		c.AR.MaxDistanceM = 5000
	}
	if c.AR.NearFactor <= 0 {
		c.AR.NearFactor = 0.3
	}
	if c.AR.SpanFactor <= 0 {
		c.AR.SpanFactor = 0.4
	}
	if c.AR.NearFactor+c.AR.SpanFactor > 1 {
		return fmt.Errorf("ar.near_factor + ar.span_factor must be <= 1, got %.2f", c.AR.NearFactor+c.AR.SpanFactor)
	}
	if c.AR.BadgeScale <= 0 {
		c.AR.BadgeScale = 3
	}
	if c.AR.RefreshMs <= 0 {
		c.AR.RefreshMs = 100
	}
	if c.Lens.FocalLengthMm < 0 {
		return fmt.Errorf("lens.focal_length_mm must be >= 0, got %.2f", c.Lens.FocalLengthMm)
	}

	// Camera
	if c.Camera.WidthPx <= 0 {
		c.Camera.WidthPx = 4032
	}
	if c.Camera.HeightPx <= 0 {
		c.Camera.HeightPx = 3024
	}
	if c.Camera.MaxZoom <= 0 {
		c.Camera.MaxZoom = 8
	}
	if c.Camera.MaxZoom < 1 {
		return fmt.Errorf("camera.max_zoom must be >= 1, got %.2f", c.Camera.MaxZoom)
	}
	if c.Camera.Authorization == "" {
		c.Camera.Authorization = "granted"
	}
	if !oneOf(c.Camera.Authorization, "granted", "denied", "restricted", "prompt") {
		return fmt.Errorf("camera.authorization must be granted, denied, restricted or prompt, got %q", c.Camera.Authorization)
	}
	if c.Camera.CaptureDelayMs <= 0 {
		c.Camera.CaptureDelayMs = 150
	}
	if c.Camera.RestartAfterMs <= 0 {
		c.Camera.RestartAfterMs = 1000
	}
	if c.Camera.MaxConfigRetries <= 0 {
		c.Camera.MaxConfigRetries = 1
	}

	// Capture
	if c.Capture.Format == "" {
		c.Capture.Format = "jpeg"
	}
	if !oneOf(c.Capture.Format, "jpeg", "webp") {
		return fmt.Errorf("capture.format must be jpeg or webp, got %q", c.Capture.Format)
	}
	if c.Capture.JPEGQuality == 0 {
		c.Capture.JPEGQuality = 90
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be between 1 and 100, got %d", c.Capture.JPEGQuality)
	}

	// Storage
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "waygo.db"
	}
	if c.Storage.PhotoDir == "" {
		c.Storage.PhotoDir = "photos"
	}
	if c.Storage.Authorization == "" {
		c.Storage.Authorization = "granted"
	}
	if !oneOf(c.Storage.Authorization, "granted", "denied", "restricted") {
		return fmt.Errorf("storage.authorization must be granted, denied or restricted, got %q", c.Storage.Authorization)
	}

	// Waypoints
	if c.Waypoints.SourceEPSG == 0 {
		c.Waypoints.SourceEPSG = 4326
	}

	// Location
	if c.Location.Lat < -90 || c.Location.Lat > 90 {
		return fmt.Errorf("location.lat must be between -90 and 90, got %.6f", c.Location.Lat)
	}
	if c.Location.Lon < -180 || c.Location.Lon > 180 {
		return fmt.Errorf("location.lon must be between -180 and 180, got %.6f", c.Location.Lon)
	}
	if c.Location.MaxFixAgeMs < 0 {
		return fmt.Errorf("location.max_fix_age_ms must be >= 0, got %d", c.Location.MaxFixAgeMs)
	}

	// Remote
	if c.Remote.PollMs <= 0 {
		c.Remote.PollMs = 20
	}
	if c.Remote.ShutterPin != 0 && c.Remote.ShutterPin == c.Remote.LampPin {
		return fmt.Errorf("remote.shutter_pin and remote.lamp_pin must differ, both are %d", c.Remote.ShutterPin)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// RefreshInterval returns the live overlay refresh period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.AR.RefreshMs) * time.Millisecond
}

// RestartAfter returns how long the session may sit outside Running before
// re-entering the camera screen forces a restart.
func (c *Config) RestartAfter() time.Duration {
	return time.Duration(c.Camera.RestartAfterMs) * time.Millisecond
}

// CaptureDelay returns the simulated still capture latency.
func (c *Config) CaptureDelay() time.Duration {
	return time.Duration(c.Camera.CaptureDelayMs) * time.Millisecond
}

// MaxFixAge returns how old a location fix may be before it is ignored.
func (c *Config) MaxFixAge() time.Duration {
	return time.Duration(c.Location.MaxFixAgeMs) * time.Millisecond
}

// PollInterval returns the shutter button poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Remote.PollMs) * time.Millisecond
}
