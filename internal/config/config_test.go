package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml (filepath.Clean resolves this)
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
ar:
  half_fov_deg: 45.0
  max_distance_m: 3000.0
  badge_scale: 2.5
  refresh_ms: 50
lens:
  name: "wide"
  focal_length_mm: 4.2
sensor:
  width_mm: 5.6
  height_mm: 4.2
camera:
  type: "sim"
  width_px: 1920
  height_px: 1080
  max_zoom: 5.0
  authorization: "prompt"
capture:
  format: "webp"
storage:
  database_path: "hud.db"
  photo_dir: "shots"
  authorization: "restricted"
waypoints:
  seed_file: "configs/waypoints.yaml"
  source_epsg: 3857
location:
  static: true
  lat: 37.7749
  lon: -122.4194
  heading: 15.0
remote:
  shutter_pin: 17
  lamp_pin: 27
defaults:
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Type != "sim" {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, "sim")
	}
	if cfg.AR.HalfFOVDeg != 45.0 {
		t.Errorf("ar.half_fov_deg = %v, want 45.0", cfg.AR.HalfFOVDeg)
	}
	if cfg.AR.MaxDistanceM != 3000.0 {
		t.Errorf("ar.max_distance_m = %v, want 3000.0", cfg.AR.MaxDistanceM)
	}
	if cfg.Sensor == nil {
		t.Fatal("sensor should not be nil")
	}
	if cfg.Sensor.WidthMm != 5.6 {
		t.Errorf("sensor.width_mm = %v, want 5.6", cfg.Sensor.WidthMm)
	}
	if cfg.Camera.MaxZoom != 5.0 {
		t.Errorf("camera.max_zoom = %v, want 5.0", cfg.Camera.MaxZoom)
	}
	if cfg.Capture.Format != "webp" {
		t.Errorf("capture.format = %q, want webp", cfg.Capture.Format)
	}
	if cfg.Storage.Authorization != "restricted" {
		t.Errorf("storage.authorization = %q, want restricted", cfg.Storage.Authorization)
	}
	if cfg.Waypoints.SourceEPSG != 3857 {
		t.Errorf("waypoints.source_epsg = %d, want 3857", cfg.Waypoints.SourceEPSG)
	}
	if !cfg.Location.Static || cfg.Location.Lat != 37.7749 {
		t.Errorf("location = %+v, want static at 37.7749", cfg.Location)
	}
	if cfg.Remote.ShutterPin != 17 || cfg.Remote.LampPin != 27 {
		t.Errorf("remote pins = %d/%d, want 17/27", cfg.Remote.ShutterPin, cfg.Remote.LampPin)
	}
}

func TestLoad_MissingCameraType(t *testing.T) {
	yaml := `
ar:
  half_fov_deg: 60.0
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for missing camera.type, got nil")
	}
}

func TestLoad_NegativeFocalLength(t *testing.T) {
	yaml := `
camera:
  type: "sim"
lens:
  focal_length_mm: -10.0
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for negative focal_length_mm, got nil")
	}
}

func TestLoad_HalfFOVOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		fov  float64
	}{
		{"negative", -1.0},
		{"over_180", 181.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := `
camera:
  type: "sim"
ar:
  half_fov_deg: ` + formatFloat(tc.fov)
			path := writeConfig(t, yaml)
			_, err := Load(path)
			if err == nil {
				t.Errorf("expected error for half_fov_deg=%v, got nil", tc.fov)
			}
		})
	}
}

func TestLoad_BandTooTall(t *testing.T) {
	yaml := `
camera:
  type: "sim"
ar:
  near_factor: 0.7
  span_factor: 0.5
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for near_factor+span_factor > 1, got nil")
	}
}

func TestLoad_InvalidEnums(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"camera_authorization", "camera:\n  type: sim\n  authorization: maybe\n"},
		{"storage_authorization", "camera:\n  type: sim\nstorage:\n  authorization: prompt\n"},
		{"capture_format", "camera:\n  type: sim\ncapture:\n  format: gif\n"},
		{"jpeg_quality", "camera:\n  type: sim\ncapture:\n  jpeg_quality: 101\n"},
		{"debug_level", "camera:\n  type: sim\ndefaults:\n  debug_level: 9\n"},
		{"latitude", "camera:\n  type: sim\nlocation:\n  lat: 91\n"},
		{"same_pins", "camera:\n  type: sim\nremote:\n  shutter_pin: 4\n  lamp_pin: 4\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s, got nil", tc.name)
			}
		})
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	yaml := `
camera:
  type: "sim"
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AR.HalfFOVDeg != 0 {
		t.Errorf("half_fov_deg should stay unset (resolved later), got %v", cfg.AR.HalfFOVDeg)
	}
	if cfg.AR.MaxDistanceM != 5000 {
		t.Errorf("max_distance_m default = %v, want 5000", cfg.AR.MaxDistanceM)
	}
	if cfg.AR.NearFactor != 0.3 || cfg.AR.SpanFactor != 0.4 {
		t.Errorf("band default = %v/%v, want 0.3/0.4", cfg.AR.NearFactor, cfg.AR.SpanFactor)
	}
	if cfg.AR.BadgeScale != 3 {
		t.Errorf("badge_scale default = %v, want 3", cfg.AR.BadgeScale)
	}
	if cfg.Camera.MaxZoom != 8 {
		t.Errorf("max_zoom default = %v, want 8", cfg.Camera.MaxZoom)
	}
	if cfg.Camera.Authorization != "granted" {
		t.Errorf("camera.authorization default = %q, want granted", cfg.Camera.Authorization)
	}
	if cfg.Camera.RestartAfterMs != 1000 {
		t.Errorf("restart_after_ms default = %d, want 1000", cfg.Camera.RestartAfterMs)
	}
	if cfg.Camera.MaxConfigRetries != 1 {
		t.Errorf("max_config_retries default = %d, want 1", cfg.Camera.MaxConfigRetries)
	}
	if cfg.Capture.Format != "jpeg" || cfg.Capture.JPEGQuality != 90 {
		t.Errorf("capture default = %+v, want jpeg/90", cfg.Capture)
	}
	if cfg.Waypoints.SourceEPSG != 4326 {
		t.Errorf("source_epsg default = %d, want 4326", cfg.Waypoints.SourceEPSG)
	}
	if cfg.Remote.PollMs != 20 {
		t.Errorf("poll_ms default = %d, want 20", cfg.Remote.PollMs)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (camera.type missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
camera:
  type: "sim"
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		AR:       ARConfig{RefreshMs: 100},
		Camera:   CameraConfig{RestartAfterMs: 1000, CaptureDelayMs: 150},
		Location: LocationConfig{MaxFixAgeMs: 5000},
		Remote:   RemoteConfig{PollMs: 20},
	}
	cases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RefreshInterval", cfg.RefreshInterval(), 100 * time.Millisecond},
		{"RestartAfter", cfg.RestartAfter(), time.Second},
		{"CaptureDelay", cfg.CaptureDelay(), 150 * time.Millisecond},
		{"MaxFixAge", cfg.MaxFixAge(), 5 * time.Second},
		{"PollInterval", cfg.PollInterval(), 20 * time.Millisecond},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s() = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

// formatFloat is a test helper for embedding floats into YAML strings.
func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
