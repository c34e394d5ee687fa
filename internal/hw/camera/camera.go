package camera

import "fmt"

// Authorization is the camera access answer given by the platform.
type Authorization int

const (
	NotDetermined Authorization = iota
	Authorized
	Denied
	Restricted
)

func (a Authorization) String() string {
	switch a {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	default:
		return "not_determined"
	}
}

// ParseAuthorization maps the configuration values granted, denied,
// restricted and prompt.
func ParseAuthorization(s string) (Authorization, error) {
	switch s {
	case "granted":
		return Authorized, nil
	case "denied":
		return Denied, nil
	case "restricted":
		return Restricted, nil
	case "prompt", "":
		return NotDetermined, nil
	}
	return NotDetermined, fmt.Errorf("unknown authorization %q", s)
}

// Orientation tells how the sensor buffer must be rotated so that its top
// row matches the device's physical up at capture time.
type Orientation int

const (
	OrientUp    Orientation = iota // buffer already upright
	OrientRight                    // rotate 90° clockwise
	OrientDown                     // rotate 180°
	OrientLeft                     // rotate 90° counter-clockwise
)

// Format is one capture resolution offered by a device.
type Format struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Pixels returns the pixel count used to rank formats.
func (f Format) Pixels() int { return f.Width * f.Height }

func (f Format) String() string { return fmt.Sprintf("%dx%d", f.Width, f.Height) }

// Point is a normalized device coordinate: (0,0) top-left, (1,1) bottom-right
// of the landscape sensor.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is the raw output of one still capture.
type Frame struct {
	Data        []byte
	Orientation Orientation
}

// Hardware is the platform camera stack.
type Hardware interface {
	// Authorization returns the current access state without prompting.
	Authorization() Authorization
	// RequestAccess prompts the user if needed and blocks until answered.
	RequestAccess() (bool, error)
	// Devices enumerates capture devices; the first is the default.
	Devices() []Device
	// Bind attaches the device to a single input/output pipeline at the
	// given format.
	Bind(dev Device, f Format) (Session, error)
}

// Device is a capture device and its controls.
type Device interface {
	ID() string
	Formats() []Format
	MaxZoom() float64
	SetZoom(factor float64) error
	// FocusPointSupported reports whether SetFocusPoint has an effect.
	FocusPointSupported() bool
	SetFocusPoint(p Point) error
	ExposurePointSupported() bool
	SetExposurePoint(p Point) error
	// Retrigger restarts continuous auto-focus and auto-exposure.
	Retrigger() error
}

// Session is a bound pipeline. Start and Stop block.
type Session interface {
	Start() error
	Stop() error
	Running() bool
	// Capture requests a still at format f. done is called exactly once,
	// on an arbitrary goroutine, unless the session is torn down first.
	Capture(f Format, done func(Frame, error)) error
	// Unbind removes the input and output. The session is unusable after.
	Unbind() error
}

// BestFormat returns the format with the highest pixel count.
func BestFormat(formats []Format) (Format, bool) {
	if len(formats) == 0 {
		return Format{}, false
	}
	best := formats[0]
	for _, f := range formats[1:] {
		if f.Pixels() > best.Pixels() {
			best = f
		}
	}
	return best, true
}

// SignalKind identifies an asynchronous hardware notification.
type SignalKind int

const (
	SignalInterrupted SignalKind = iota
	SignalInterruptionEnded
	SignalRuntimeError
)

func (k SignalKind) String() string {
	switch k {
	case SignalInterrupted:
		return "interrupted"
	case SignalInterruptionEnded:
		return "interruption_ended"
	default:
		return "runtime_error"
	}
}

// Signal is an interruption or runtime error reported by the platform.
type Signal struct {
	Kind SignalKind
	Err  error
}

// SignalSource is implemented by hardware that reports interruptions and
// runtime errors. The handler may be called from any goroutine.
type SignalSource interface {
	OnSignal(handler func(Signal))
}
