package geometry

import (
	"fmt"
	"math"

	"github.com/cjeanneret/WayGo/internal/config"
)

// FOVCalculator computes the camera's field of view from lens and sensor
// configuration. It is only used when the AR half-FOV is not set explicitly.
type FOVCalculator struct {
	cfg *config.Config
}

// NewFOVCalculator creates a new FOV calculator.
// Returns an error if sensor or lens information is not available.
func NewFOVCalculator(cfg *config.Config) (*FOVCalculator, error) {
	if cfg.Sensor == nil {
		return nil, fmt.Errorf("sensor configuration is required for FOV calculations")
	}
	if cfg.Lens.FocalLengthMm <= 0 {
		return nil, fmt.Errorf("lens.focal_length_mm must be > 0 for FOV calculations")
	}
	return &FOVCalculator{cfg: cfg}, nil
}

// HorizontalFOV calculates the horizontal field of view in degrees.
// Formula: FOV = 2 × arctan(sensor_width / (2 × focal_length))
func (f *FOVCalculator) HorizontalFOV() float64 {
	return 2.0 * toDeg(math.Atan(f.cfg.Sensor.WidthMm/(2.0*f.cfg.Lens.FocalLengthMm)))
}

// VerticalFOV calculates the vertical field of view in degrees.
func (f *FOVCalculator) VerticalFOV() float64 {
	return 2.0 * toDeg(math.Atan(f.cfg.Sensor.HeightMm/(2.0*f.cfg.Lens.FocalLengthMm)))
}

// HalfHorizontalFOV is the visibility half-angle the projector uses.
func (f *FOVCalculator) HalfHorizontalFOV() float64 {
	return f.HorizontalFOV() / 2.0
}

// ResolveHalfFOV picks the projector's half field of view:
// an explicit ar.half_fov_deg wins, then the lens/sensor geometry,
// then DefaultHalfFOVDeg.
func ResolveHalfFOV(cfg *config.Config) float64 {
	if cfg.AR.HalfFOVDeg > 0 {
		return cfg.AR.HalfFOVDeg
	}
	if fov, err := NewFOVCalculator(cfg); err == nil {
		return fov.HalfHorizontalFOV()
	}
	return DefaultHalfFOVDeg
}
