package remote

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/WayGo/internal/hw/gpio"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestButton_FiresOncePerPress(t *testing.T) {
	drv := gpio.NewMockDriver()
	btn, err := NewButton(drv, 17, time.Millisecond)
	if err != nil {
		t.Fatalf("NewButton: %v", err)
	}

	var presses atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- btn.Run(ctx, func() { presses.Add(1) }) }()

	drv.SetLevel(17, gpio.Low)
	waitFor(t, func() bool { return presses.Load() == 1 })

	// Held down: no repeat.
	time.Sleep(10 * time.Millisecond)
	if n := presses.Load(); n != 1 {
		t.Errorf("presses while held = %d, want 1", n)
	}

	drv.SetLevel(17, gpio.High)
	time.Sleep(5 * time.Millisecond)
	drv.SetLevel(17, gpio.Low)
	waitFor(t, func() bool { return presses.Load() == 2 })

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestButton_IdleDoesNotFire(t *testing.T) {
	drv := gpio.NewMockDriver()
	btn, _ := NewButton(drv, 17, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	fired := false
	_ = btn.Run(ctx, func() { fired = true })
	if fired {
		t.Error("pull-up input should not fire without a press")
	}
}

func TestLamp_Set(t *testing.T) {
	drv := gpio.NewMockDriver()
	lamp, err := NewLamp(drv, 27)
	if err != nil {
		t.Fatalf("NewLamp: %v", err)
	}
	_ = lamp.Set(true)
	_ = lamp.Set(false)

	want := []gpio.Write{{Pin: 27, Level: gpio.Low}, {Pin: 27, Level: gpio.High}, {Pin: 27, Level: gpio.Low}}
	got := drv.Writes()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %v, want %v", i, got[i], want[i])
		}
	}
}
