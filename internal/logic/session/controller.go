package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/exec"
	"github.com/cjeanneret/WayGo/internal/hw/camera"
)

// DefaultMaxZoom bounds the logical zoom factor.
const DefaultMaxZoom = 8.0

// subscriberBuffer is the per-subscriber event backlog. A subscriber that
// falls further behind loses events.
const subscriberBuffer = 64

// Options tunes recovery behaviour.
type Options struct {
	// RestartAfter is how long the session may sit outside Running, once
	// authorized, before Activate forces a restart.
	RestartAfter time.Duration
	// MaxConfigRetries is the number of automatic retries after a
	// configuration failure.
	MaxConfigRetries int
	// MaxZoom is the upper bound of the logical zoom.
	MaxZoom float64
}

// DefaultOptions returns a 1 s restart delay, one retry and 8x zoom.
func DefaultOptions() Options {
	return Options{RestartAfter: time.Second, MaxConfigRetries: 1, MaxZoom: DefaultMaxZoom}
}

// Controller owns the single camera session of the process.
//
// State changes happen under mu and are published, in order, on the
// publish executor. Every blocking hardware call runs on the io executor.
type Controller struct {
	hw      camera.Hardware
	io      exec.Executor
	publish exec.Executor
	opts    Options
	now     func() time.Time

	mu         sync.Mutex
	state      State
	since      time.Time
	lastErr    error
	authorized bool
	retries    int
	device     camera.Device
	session    camera.Session
	format     camera.Format
	baseZoom   float64
	zoom       float64
	subs       map[int]chan Event
	nextSub    int
}

// NewController creates a controller in the Uninitialized state.
func NewController(hw camera.Hardware, io, publish exec.Executor, opts Options) *Controller {
	if opts.MaxZoom < 1 {
		opts.MaxZoom = DefaultMaxZoom
	}
	if opts.MaxConfigRetries < 0 {
		opts.MaxConfigRetries = 0
	}
	c := &Controller{
		hw:       hw,
		io:       io,
		publish:  publish,
		opts:     opts,
		now:      time.Now,
		baseZoom: 1,
		zoom:     1,
		subs:     make(map[int]chan Event),
	}
	c.since = c.now()
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error attached to the latest transition, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ActiveSession returns the bound session and its format while Running.
// Callers must treat an interrupted camera as unavailable.
func (c *Controller) ActiveSession() (camera.Session, camera.Format, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running || c.session == nil {
		return nil, camera.Format{}, false
	}
	return c.session, c.format, true
}

// Subscribe returns a channel of transitions and a cancel function.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, subscriberBuffer)
	c.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// transition must be called with mu held.
func (c *Controller) transition(to State, err error) {
	from := c.state
	c.state = to
	c.since = c.now()
	c.lastErr = err
	debug.Transition(from.String(), to.String(), err)

	ev := Event{From: from, To: to, Err: err, At: c.since}
	subs := make([]chan Event, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	// Submitted under mu so events keep transition order on a serial queue.
	c.publish.Submit(func() {
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
				debug.Verbose("Session: subscriber backlog full, dropped %s→%s", ev.From, ev.To)
			}
		}
	})
}

// Activate is called when a screen hosting the camera appears.
// Running and Unavailable are left alone; Denied re-offers the permission
// request; Failed, or any other state held longer than RestartAfter once
// authorized, forces a restart.
func (c *Controller) Activate() {
	c.mu.Lock()
	var next func()
	switch c.state {
	case Running:
		debug.Trace("Session: activate while running, nothing to do")
	case Unavailable:
		debug.Trace("Session: activate with no camera device, nothing to do")
	case Uninitialized, Denied:
		next = c.beginPermission()
	case Failed:
		next = c.forceRestart()
	default:
		if held := c.now().Sub(c.since); c.authorized && held > c.opts.RestartAfter {
			debug.Info("Session: stuck in %s for %v, forcing restart", c.state, held.Round(time.Millisecond))
			next = c.forceRestart()
		}
	}
	c.mu.Unlock()
	c.run(next)
}

// RequestPermission asks for camera access again. It only has an effect
// before the first request or after a denial.
func (c *Controller) RequestPermission() {
	c.mu.Lock()
	var next func()
	if c.state == Uninitialized || c.state == Denied {
		next = c.beginPermission()
	}
	c.mu.Unlock()
	c.run(next)
}

// run hands a task to the io executor. Never called with mu held: an
// inline executor would re-enter the lock.
func (c *Controller) run(task func()) {
	if task != nil {
		c.io.Submit(task)
	}
}

func (c *Controller) beginPermission() func() {
	c.transition(RequestingPermission, nil)
	return c.requestPermission
}

// forceRestart detaches whatever is bound and returns the recovery task.
// mu held.
func (c *Controller) forceRestart() func() {
	sess := c.detach()
	c.retries = 0
	if c.state != Failed {
		c.transition(Failed, nil)
	}
	return func() { c.recoverFrom(sess) }
}

// detach clears the bound session and returns it for teardown. mu held.
func (c *Controller) detach() camera.Session {
	sess := c.session
	c.session = nil
	c.device = nil
	return sess
}

func (c *Controller) requestPermission() {
	auth := c.hw.Authorization()
	granted := auth == camera.Authorized
	if auth == camera.NotDetermined {
		ok, err := c.hw.RequestAccess()
		if err != nil {
			debug.Error(fmt.Errorf("camera access request: %w", err))
		}
		granted = ok && err == nil
		auth = c.hw.Authorization()
	}

	c.mu.Lock()
	if c.state != RequestingPermission {
		c.mu.Unlock()
		return
	}
	if !granted {
		c.authorized = false
		c.transition(Denied, fmt.Errorf("%w (%s)", ErrPermissionDenied, auth))
		c.mu.Unlock()
		return
	}
	c.authorized = true
	c.retries = 0
	c.transition(Configuring, nil)
	c.mu.Unlock()

	c.configure()
}

// configure runs on the io executor with the state already Configuring.
func (c *Controller) configure() {
	devices := c.hw.Devices()
	if len(devices) == 0 {
		c.mu.Lock()
		if c.state == Configuring {
			c.transition(Unavailable, ErrDeviceUnavailable)
		}
		c.mu.Unlock()
		return
	}

	dev := devices[0]
	format, ok := camera.BestFormat(dev.Formats())
	if !ok {
		c.configFailed(fmt.Errorf("%w: device %s offers no format", ErrSessionConfiguration, dev.ID()))
		return
	}
	sess, err := c.hw.Bind(dev, format)
	if err != nil {
		c.configFailed(fmt.Errorf("%w: bind %s: %v", ErrSessionConfiguration, dev.ID(), err))
		return
	}
	if err := sess.Start(); err != nil {
		_ = sess.Unbind()
		c.configFailed(fmt.Errorf("%w: start: %v", ErrSessionConfiguration, err))
		return
	}

	c.mu.Lock()
	if c.state != Configuring {
		// Shut down while we were configuring.
		c.mu.Unlock()
		c.teardown(sess)
		return
	}
	c.device = dev
	c.session = sess
	c.format = format
	c.retries = 0
	c.transition(Running, nil)
	if c.zoom > 1 {
		// Carry the user's zoom over to the new session.
		c.applyZoom(dev, c.appliedZoom())
	}
	c.mu.Unlock()

	debug.Verbose("Session: running on %s at %s", dev.ID(), format)
}

func (c *Controller) configFailed(err error) {
	debug.Error(err)
	c.mu.Lock()
	if c.state != Configuring {
		c.mu.Unlock()
		return
	}
	c.transition(Failed, err)
	var next func()
	if c.retries < c.opts.MaxConfigRetries {
		c.retries++
		debug.Info("Session: configuration retry %d/%d", c.retries, c.opts.MaxConfigRetries)
		next = func() { c.recoverFrom(nil) }
	}
	c.mu.Unlock()
	c.run(next)
}

// recoverFrom is the Failed path: stop, unbind, then reconfigure.
func (c *Controller) recoverFrom(sess camera.Session) {
	c.teardown(sess)

	c.mu.Lock()
	if c.state != Failed {
		c.mu.Unlock()
		return
	}
	c.transition(Configuring, nil)
	c.mu.Unlock()

	c.configure()
}

func (c *Controller) teardown(sess camera.Session) {
	if sess == nil {
		return
	}
	if sess.Running() {
		if err := sess.Stop(); err != nil {
			debug.Error(fmt.Errorf("stop session: %w", err))
		}
	}
	if err := sess.Unbind(); err != nil {
		debug.Error(fmt.Errorf("unbind session: %w", err))
	}
}

// HandleInterruption marks a running session as interrupted.
func (c *Controller) HandleInterruption() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		debug.Verbose("Session: interruption ignored in %s", c.state)
		return
	}
	c.transition(Interrupted, ErrSessionInterrupted)
}

// HandleInterruptionEnded resumes the interrupted session without
// reconfiguring it. A failed resume goes through the Failed path.
func (c *Controller) HandleInterruptionEnded() {
	c.mu.Lock()
	if c.state != Interrupted {
		c.mu.Unlock()
		return
	}
	sess := c.session
	c.mu.Unlock()

	c.run(func() { c.resume(sess) })
}

func (c *Controller) resume(sess camera.Session) {
	err := sess.Start()

	c.mu.Lock()
	if c.state != Interrupted || c.session != sess {
		c.mu.Unlock()
		return
	}
	var next func()
	if err != nil {
		c.detach()
		c.retries = 0
		c.transition(Failed, fmt.Errorf("%w: resume: %v", ErrSessionRuntime, err))
		next = func() { c.recoverFrom(sess) }
	} else {
		c.transition(Running, nil)
	}
	c.mu.Unlock()
	c.run(next)
}

// HandleRuntimeError moves a Running or Interrupted session to Failed and
// reconfigures it from scratch.
func (c *Controller) HandleRuntimeError(err error) {
	c.mu.Lock()
	if c.state != Running && c.state != Interrupted {
		c.mu.Unlock()
		debug.Verbose("Session: runtime error ignored: %v", err)
		return
	}
	sess := c.detach()
	c.retries = 0
	c.transition(Failed, fmt.Errorf("%w: %v", ErrSessionRuntime, err))
	c.mu.Unlock()
	c.run(func() { c.recoverFrom(sess) })
}

// HandleSignal dispatches a hardware notification.
func (c *Controller) HandleSignal(sig camera.Signal) {
	switch sig.Kind {
	case camera.SignalInterrupted:
		c.HandleInterruption()
	case camera.SignalInterruptionEnded:
		c.HandleInterruptionEnded()
	case camera.SignalRuntimeError:
		c.HandleRuntimeError(sig.Err)
	}
}

// Shutdown stops and unbinds the session and returns to Uninitialized.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	sess := c.detach()
	if c.state != Uninitialized {
		c.transition(Uninitialized, nil)
	}
	c.mu.Unlock()
	c.run(func() { c.teardown(sess) })
}
