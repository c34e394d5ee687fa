// Package remote drives the optional GPIO accessories: a shutter button
// wired between a pin and GND, and a status lamp.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/hw/gpio"
)

// Button is an active-LOW push button on an input with pull-up.
type Button struct {
	gpio gpio.Driver
	pin  int
	poll time.Duration
}

// NewButton configures the pin and returns the button.
func NewButton(g gpio.Driver, pin int, poll time.Duration) (*Button, error) {
	if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("setup shutter pin %d: %w", pin, err)
	}
	return &Button{gpio: g, pin: pin, poll: poll}, nil
}

// Run polls the pin and calls onPress once per HIGH→LOW edge until ctx is
// done. A button held down fires once. Read errors are logged and polling
// continues.
func (b *Button) Run(ctx context.Context, onPress func()) error {
	debug.Verbose("Remote: polling shutter button on pin %d every %v", b.pin, b.poll)
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	last := gpio.High
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		lvl, err := b.gpio.ReadPin(b.pin)
		if err != nil {
			debug.Error(fmt.Errorf("read shutter pin %d: %w", b.pin, err))
			continue
		}
		if last == gpio.High && lvl == gpio.Low {
			debug.Live("Remote: shutter pressed")
			onPress()
		}
		last = lvl
	}
}

// Lamp is a status LED, lit while the camera session is running.
type Lamp struct {
	gpio gpio.Driver
	pin  int
}

// NewLamp configures the pin as an output and switches the lamp off.
func NewLamp(g gpio.Driver, pin int) (*Lamp, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup lamp pin %d: %w", pin, err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("reset lamp pin %d: %w", pin, err)
	}
	return &Lamp{gpio: g, pin: pin}, nil
}

// Set lights or clears the lamp.
func (l *Lamp) Set(on bool) error {
	return l.gpio.WritePin(l.pin, gpio.Level(on))
}
