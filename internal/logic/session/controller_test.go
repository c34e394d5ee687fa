package session

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cjeanneret/WayGo/internal/exec"
	"github.com/cjeanneret/WayGo/internal/hw/camera"
)

const epsilon = 1e-9

func newTestController(t *testing.T, opts camera.SimOptions) (*Controller, *camera.Sim, <-chan Event) {
	t.Helper()
	if opts.Width == 0 {
		opts.Width, opts.Height = 64, 48
	}
	sim := camera.NewSim(opts)
	c := NewController(sim, exec.Inline{}, exec.Inline{}, DefaultOptions())
	events, cancel := c.Subscribe()
	t.Cleanup(cancel)
	return c, sim, events
}

// drain returns the target states of all buffered events.
func drain(events <-chan Event) []State {
	var got []State
	for {
		select {
		case ev := <-events:
			got = append(got, ev.To)
		default:
			return got
		}
	}
}

func assertStates(t *testing.T, got []State, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestActivate_ReachesRunning(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()

	assertStates(t, drain(events), RequestingPermission, Configuring, Running)
	sess, format, ok := c.ActiveSession()
	if !ok || sess == nil {
		t.Fatal("expected an active session")
	}
	if format != (camera.Format{Width: 64, Height: 48}) {
		t.Errorf("format = %v, want the highest pixel count 64x48", format)
	}
	if st := sim.Stats(); st.Binds != 1 || st.Starts != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestActivate_WhileRunningIsNoOp(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	drain(events)

	c.Activate()
	if got := drain(events); len(got) != 0 {
		t.Errorf("unexpected transitions %v", got)
	}
	if st := sim.Stats(); st.Binds != 1 {
		t.Errorf("binds = %d, want 1", st.Binds)
	}
}

func TestPermission_Denied(t *testing.T) {
	cases := []struct {
		name string
		opts camera.SimOptions
	}{
		{"denied", camera.SimOptions{Authorization: camera.Denied}},
		{"restricted", camera.SimOptions{Authorization: camera.Restricted}},
		{"prompt_refused", camera.SimOptions{Authorization: camera.NotDetermined}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _, events := newTestController(t, tc.opts)
			c.Activate()
			assertStates(t, drain(events), RequestingPermission, Denied)
			if !errors.Is(c.LastError(), ErrPermissionDenied) {
				t.Errorf("LastError() = %v, want ErrPermissionDenied", c.LastError())
			}
			if _, _, ok := c.ActiveSession(); ok {
				t.Error("no session expected when denied")
			}
		})
	}
}

func TestPermission_PromptGranted(t *testing.T) {
	c, _, events := newTestController(t, camera.SimOptions{Authorization: camera.NotDetermined, GrantOnPrompt: true})
	c.RequestPermission()
	assertStates(t, drain(events), RequestingPermission, Configuring, Running)
}

func TestActivate_DeniedReoffersPermission(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Denied})
	c.Activate()
	drain(events)

	sim.SetAuthorization(camera.Authorized) // user flips the switch in settings
	c.Activate()
	assertStates(t, drain(events), RequestingPermission, Configuring, Running)
}

func TestConfigure_NoDeviceIsUnavailable(t *testing.T) {
	c, _, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized, NoDevice: true})
	c.Activate()
	assertStates(t, drain(events), RequestingPermission, Configuring, Unavailable)
	if !errors.Is(c.LastError(), ErrDeviceUnavailable) {
		t.Errorf("LastError() = %v, want ErrDeviceUnavailable", c.LastError())
	}
}

func TestConfigure_RetriesOnce(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	sim.FailNextBind(errors.New("format negotiation"))
	c.Activate()

	assertStates(t, drain(events), RequestingPermission, Configuring, Failed, Configuring, Running)
	if st := sim.Stats(); st.Binds != 2 {
		t.Errorf("binds = %d, want 2", st.Binds)
	}
}

func TestConfigure_RepeatedFailureStaysFailed(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	sim.FailNextBind(errors.New("bind"))
	sim.FailNextStart(errors.New("start"))
	c.Activate()

	assertStates(t, drain(events), RequestingPermission, Configuring, Failed, Configuring, Failed)
	if !errors.Is(c.LastError(), ErrSessionConfiguration) {
		t.Errorf("LastError() = %v, want ErrSessionConfiguration", c.LastError())
	}
	if st := sim.Stats(); st.Unbinds != 1 {
		t.Errorf("unbinds = %d, want 1 after failed start", st.Unbinds)
	}

	// Re-entering the screen forces a restart.
	c.Activate()
	assertStates(t, drain(events), Configuring, Running)
}

func TestRuntimeError_Reconfigures(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	drain(events)

	c.HandleRuntimeError(errors.New("media services reset"))
	assertStates(t, drain(events), Failed, Configuring, Running)

	st := sim.Stats()
	if st.Stops != 1 || st.Unbinds != 1 || st.Binds != 2 {
		t.Errorf("stats = %+v, want a full stop/unbind/rebind cycle", st)
	}
}

func TestRuntimeError_EndsFailedWhenReconfigureFails(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	drain(events)

	sim.FailNextBind(errors.New("bind"))
	sim.FailNextStart(errors.New("start"))
	c.HandleRuntimeError(errors.New("hardware fault"))

	got := drain(events)
	assertStates(t, got, Failed, Configuring, Failed, Configuring, Failed)
	if c.State() != Failed {
		t.Errorf("State() = %v, want failed", c.State())
	}
}

func TestRuntimeError_IgnoredWhenNotRunning(t *testing.T) {
	c, _, events := newTestController(t, camera.SimOptions{Authorization: camera.Denied})
	c.Activate()
	drain(events)

	c.HandleRuntimeError(errors.New("late"))
	if got := drain(events); len(got) != 0 {
		t.Errorf("unexpected transitions %v", got)
	}
}

func TestInterruption_ResumesWithoutReconfigure(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	drain(events)

	c.HandleSignal(camera.Signal{Kind: camera.SignalInterrupted})
	if c.State() != Interrupted {
		t.Fatalf("State() = %v, want interrupted", c.State())
	}
	if !errors.Is(c.LastError(), ErrSessionInterrupted) {
		t.Errorf("LastError() = %v, want ErrSessionInterrupted", c.LastError())
	}
	if _, _, ok := c.ActiveSession(); ok {
		t.Error("camera must be unavailable while interrupted")
	}

	c.HandleSignal(camera.Signal{Kind: camera.SignalInterruptionEnded})
	assertStates(t, drain(events), Interrupted, Running)
	if st := sim.Stats(); st.Binds != 1 {
		t.Errorf("binds = %d, want 1 (no reconfiguration)", st.Binds)
	}
}

func TestInterruption_FailedResumeReconfigures(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	drain(events)

	c.HandleInterruption()
	sim.FailNextStart(errors.New("still busy"))
	c.HandleInterruptionEnded()

	assertStates(t, drain(events), Interrupted, Failed, Configuring, Running)
}

func TestInterruption_RuntimeErrorWhileInterrupted(t *testing.T) {
	c, _, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	drain(events)

	c.HandleInterruption()
	c.HandleSignal(camera.Signal{Kind: camera.SignalRuntimeError, Err: errors.New("reset")})
	assertStates(t, drain(events), Interrupted, Failed, Configuring, Running)
	if c.LastError() != nil {
		t.Errorf("LastError() = %v after recovery, want nil", c.LastError())
	}
}

func TestActivate_StuckForcesRestart(t *testing.T) {
	c, _, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Activate()
	c.HandleInterruption()
	drain(events)

	now = now.Add(500 * time.Millisecond)
	c.Activate()
	if got := drain(events); len(got) != 0 {
		t.Fatalf("restart after 500ms: %v", got)
	}

	now = now.Add(time.Second)
	c.Activate()
	assertStates(t, drain(events), Failed, Configuring, Running)
}

func TestActivate_UnavailableIsNotRetried(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized, NoDevice: true})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Activate()
	assertStates(t, drain(events), RequestingPermission, Configuring, Unavailable)

	now = now.Add(time.Hour)
	c.Activate()
	if got := drain(events); len(got) != 0 {
		t.Fatalf("activate on a missing device: %v", got)
	}
	if c.State() != Unavailable || sim.Stats().Binds != 0 {
		t.Errorf("state = %s binds = %d, want unavailable with no bind", c.State(), sim.Stats().Binds)
	}
}

func TestShutdown(t *testing.T) {
	c, sim, events := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	drain(events)

	c.Shutdown()
	assertStates(t, drain(events), Uninitialized)
	if st := sim.Stats(); st.Stops != 1 || st.Unbinds != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	sim := camera.NewSim(camera.SimOptions{Authorization: camera.Authorized, Width: 8, Height: 8})
	c := NewController(sim, exec.Inline{}, exec.Inline{}, DefaultOptions())
	events, cancel := c.Subscribe()
	cancel()
	cancel() // idempotent
	c.Activate()
	if got := drain(events); len(got) != 0 {
		t.Errorf("cancelled subscriber got %v", got)
	}
}

func TestController_WithQueues(t *testing.T) {
	io, pub := exec.NewQueue("io"), exec.NewQueue("publish")
	defer io.Close()
	defer pub.Close()

	sim := camera.NewSim(camera.SimOptions{Authorization: camera.Authorized, Width: 8, Height: 8})
	c := NewController(sim, io, pub, DefaultOptions())
	events, cancel := c.Subscribe()
	defer cancel()

	c.Activate()
	var got []State
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev.To)
		case <-timeout:
			t.Fatalf("timeout, transitions so far %v", got)
		}
	}
	assertStates(t, got, RequestingPermission, Configuring, Running)
}

func TestZoom_NotRunning(t *testing.T) {
	c, _, _ := newTestController(t, camera.SimOptions{Authorization: camera.Denied})
	if _, err := c.UpdateZoom(2); !errors.Is(err, ErrNotRunning) {
		t.Errorf("UpdateZoom() = %v, want ErrNotRunning", err)
	}
	if err := c.ResetZoom(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ResetZoom() = %v, want ErrNotRunning", err)
	}
	if _, err := c.FocusAt(1, 1, 10, 10); !errors.Is(err, ErrNotRunning) {
		t.Errorf("FocusAt() = %v, want ErrNotRunning", err)
	}
}

func TestZoom_GestureMath(t *testing.T) {
	c, sim, _ := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	dev := sim.Device()

	steps := []struct {
		name     string
		apply    func() (float64, error)
		wantZoom float64
	}{
		{"update_3x", func() (float64, error) { return c.UpdateZoom(3) }, 3},
		{"update_0.1x_clamps", func() (float64, error) { return c.UpdateZoom(0.1) }, 1},
		{"finalize_2x", func() (float64, error) { return c.FinalizeZoom(2) }, 2},
		{"update_from_base", func() (float64, error) { return c.UpdateZoom(2) }, 4},
		{"update_clamps_max", func() (float64, error) { return c.UpdateZoom(100) }, 8},
		{"reset", func() (float64, error) { return 1, c.ResetZoom() }, 1},
		{"base_after_reset", func() (float64, error) { return c.UpdateZoom(1.5) }, 1.5},
	}
	for _, s := range steps {
		got, err := s.apply()
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if math.Abs(got-s.wantZoom) > epsilon || math.Abs(c.ZoomLevel()-s.wantZoom) > epsilon {
			t.Errorf("%s: zoom = %v (level %v), want %v", s.name, got, c.ZoomLevel(), s.wantZoom)
		}
		if math.Abs(dev.Zoom()-s.wantZoom) > epsilon {
			t.Errorf("%s: device zoom = %v, want %v", s.name, dev.Zoom(), s.wantZoom)
		}
	}
	if dev.Retriggers() != len(steps) {
		t.Errorf("retriggers = %d, want one per zoom change (%d)", dev.Retriggers(), len(steps))
	}

	if _, err := c.UpdateZoom(math.NaN()); !errors.Is(err, ErrInvalidZoom) {
		t.Errorf("UpdateZoom(NaN) = %v, want ErrInvalidZoom", err)
	}
}

func TestZoom_DeviceMaxClampsHardwareOnly(t *testing.T) {
	c, sim, _ := newTestController(t, camera.SimOptions{Authorization: camera.Authorized, MaxZoom: 4})
	c.Activate()

	z, err := c.UpdateZoom(6)
	if err != nil {
		t.Fatalf("UpdateZoom: %v", err)
	}
	if z != 6 || c.ZoomLevel() != 6 {
		t.Errorf("logical zoom = %v, want 6", z)
	}
	if got := sim.Device().Zoom(); got != 4 {
		t.Errorf("device zoom = %v, want device max 4", got)
	}
}

func TestZoom_SurvivesReconfigure(t *testing.T) {
	c, sim, _ := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()
	if _, err := c.FinalizeZoom(3); err != nil {
		t.Fatal(err)
	}
	c.HandleRuntimeError(errors.New("reset"))
	if c.State() != Running || c.ZoomLevel() != 3 || sim.Device().Zoom() != 3 {
		t.Errorf("state=%v zoom=%v device=%v, want running at 3x", c.State(), c.ZoomLevel(), sim.Device().Zoom())
	}
}

func TestFocusAt(t *testing.T) {
	c, sim, _ := newTestController(t, camera.SimOptions{Authorization: camera.Authorized, PointsOfInterest: true})
	c.Activate()

	cases := []struct {
		x, y float64
		want camera.Point
	}{
		{100, 400, camera.Point{X: 0.5, Y: 0.75}},
		{0, 0, camera.Point{X: 0, Y: 1}},
		{400, 800, camera.Point{X: 1, Y: 0}},
		{-50, 900, camera.Point{X: 1, Y: 1}},
	}
	for _, tc := range cases {
		got, err := c.FocusAt(tc.x, tc.y, 400, 800)
		if err != nil {
			t.Fatalf("FocusAt(%v, %v): %v", tc.x, tc.y, err)
		}
		if math.Abs(got.X-tc.want.X) > epsilon || math.Abs(got.Y-tc.want.Y) > epsilon {
			t.Errorf("FocusAt(%v, %v) = %v, want %v", tc.x, tc.y, got, tc.want)
		}
		focus, exposure := sim.Device().FocusPoint()
		if focus != got || exposure != got {
			t.Errorf("device points = %v/%v, want %v", focus, exposure, got)
		}
	}

	if _, err := c.FocusAt(1, 1, 0, 800); err == nil {
		t.Error("expected error for zero view width")
	}
}

func TestFocusAt_UnsupportedIsNoOp(t *testing.T) {
	c, sim, _ := newTestController(t, camera.SimOptions{Authorization: camera.Authorized})
	c.Activate()

	if _, err := c.FocusAt(100, 400, 400, 800); err != nil {
		t.Fatalf("FocusAt: %v", err)
	}
	focus, _ := sim.Device().FocusPoint()
	if focus != (camera.Point{}) || sim.Device().Retriggers() != 0 {
		t.Errorf("unsupported device was touched: focus=%v retriggers=%d", focus, sim.Device().Retriggers())
	}
}

func TestState_String(t *testing.T) {
	if Running.String() != "running" || State(99).String() != "unknown" {
		t.Errorf("unexpected names %q %q", Running.String(), State(99).String())
	}
	b, _ := Interrupted.MarshalText()
	if string(b) != "interrupted" {
		t.Errorf("MarshalText() = %q", b)
	}
}
