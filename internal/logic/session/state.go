package session

import (
	"errors"
	"time"
)

// State is the camera session lifecycle state.
type State int

const (
	Uninitialized State = iota
	RequestingPermission
	Denied
	Unavailable
	Configuring
	Running
	Interrupted
	Failed
)

var stateNames = [...]string{
	Uninitialized:        "uninitialized",
	RequestingPermission: "requesting_permission",
	Denied:               "denied",
	Unavailable:          "unavailable",
	Configuring:          "configuring",
	Running:              "running",
	Interrupted:          "interrupted",
	Failed:               "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state name in JSON read models.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event is one published state transition.
type Event struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	Err  error     `json:"-"`
	At   time.Time `json:"at"`
}

var (
	// ErrPermissionDenied: the user declined (or policy restricts) camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable: no capture device is present.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrSessionConfiguration: binding or format negotiation failed.
	ErrSessionConfiguration = errors.New("camera session configuration failed")
	// ErrSessionInterrupted: a transient hardware or priority interruption.
	ErrSessionInterrupted = errors.New("camera session interrupted")
	// ErrSessionRuntime: the running session reported a hardware error.
	ErrSessionRuntime = errors.New("camera session runtime error")
	// ErrNotRunning: zoom, focus and capture need a running session.
	ErrNotRunning = errors.New("camera session not running")
)
