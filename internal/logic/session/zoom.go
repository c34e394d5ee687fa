package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/hw/camera"
)

// ErrInvalidZoom rejects a NaN gesture multiplier.
var ErrInvalidZoom = errors.New("invalid zoom multiplier")

// ZoomLevel returns the logical zoom factor. The hardware may apply less
// when the device's own maximum is lower.
func (c *Controller) ZoomLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// UpdateZoom applies a pinch in progress: zoom = clamp(base*m, 1, max).
func (c *Controller) UpdateZoom(multiplier float64) (float64, error) {
	return c.setZoom(multiplier, false)
}

// FinalizeZoom applies the last pinch value and makes it the new base,
// so the next gesture multiplies from there.
func (c *Controller) FinalizeZoom(multiplier float64) (float64, error) {
	return c.setZoom(multiplier, true)
}

// ResetZoom returns to 1x.
func (c *Controller) ResetZoom() error {
	c.mu.Lock()
	if c.state != Running || c.device == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.baseZoom = 1
	c.zoom = 1
	c.applyZoom(c.device, 1)
	c.mu.Unlock()
	return nil
}

func (c *Controller) setZoom(multiplier float64, commit bool) (float64, error) {
	if math.IsNaN(multiplier) {
		return 0, ErrInvalidZoom
	}

	c.mu.Lock()
	if c.state != Running || c.device == nil {
		c.mu.Unlock()
		return 0, ErrNotRunning
	}
	z := math.Max(1, math.Min(c.baseZoom*multiplier, c.opts.MaxZoom))
	c.zoom = z
	if commit {
		c.baseZoom = z
	}
	c.applyZoom(c.device, c.appliedZoom())
	c.mu.Unlock()
	return z, nil
}

// appliedZoom clamps the logical zoom to the device maximum. mu held.
func (c *Controller) appliedZoom() float64 {
	if c.device == nil {
		return c.zoom
	}
	return math.Min(c.zoom, c.device.MaxZoom())
}

// applyZoom sets the hardware zoom and re-triggers AF/AE on the io
// executor. Called with mu held so hardware sees zoom changes in order;
// the task itself never takes mu.
func (c *Controller) applyZoom(dev camera.Device, factor float64) {
	debug.Zoom(c.zoom, factor)
	c.io.Submit(func() {
		if err := dev.SetZoom(factor); err != nil {
			debug.Error(fmt.Errorf("set zoom %.2f: %w", factor, err))
			return
		}
		if err := dev.Retrigger(); err != nil {
			debug.Error(fmt.Errorf("retrigger AF/AE: %w", err))
		}
	})
}

// FocusAt maps a tap on a portrait view over the landscape sensor to a
// device point (y/h, 1-x/w) and sets the focus and exposure points where
// supported. Unsupported devices are left untouched.
func (c *Controller) FocusAt(x, y, viewWidth, viewHeight float64) (camera.Point, error) {
	if viewWidth <= 0 || viewHeight <= 0 {
		return camera.Point{}, fmt.Errorf("invalid view size %.0fx%.0f", viewWidth, viewHeight)
	}
	p := camera.Point{
		X: math.Max(0, math.Min(y/viewHeight, 1)),
		Y: math.Max(0, math.Min(1-x/viewWidth, 1)),
	}

	c.mu.Lock()
	if c.state != Running || c.device == nil {
		c.mu.Unlock()
		return camera.Point{}, ErrNotRunning
	}
	dev := c.device
	c.mu.Unlock()

	focus, exposure := dev.FocusPointSupported(), dev.ExposurePointSupported()
	if !focus && !exposure {
		debug.Verbose("Session: device %s has no points of interest, tap ignored", dev.ID())
		return p, nil
	}
	debug.Verbose("Session: focus at (%.3f, %.3f)", p.X, p.Y)
	c.run(func() {
		if focus {
			if err := dev.SetFocusPoint(p); err != nil {
				debug.Error(fmt.Errorf("set focus point: %w", err))
			}
		}
		if exposure {
			if err := dev.SetExposurePoint(p); err != nil {
				debug.Error(fmt.Errorf("set exposure point: %w", err))
			}
		}
		if err := dev.Retrigger(); err != nil {
			debug.Error(fmt.Errorf("retrigger AF/AE: %w", err))
		}
	})
	return p, nil
}
