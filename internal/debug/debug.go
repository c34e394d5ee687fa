package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session state, captures)
	LevelLive    = 2 // Live info (transitions, markers, zoom)
	LevelVerbose = 3 // Verbose (projection details, pipeline steps)
	LevelTrace   = 4 // Trace (GPIO, hardware calls)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *zerolog.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session state, capture results)
// 2 = live info (state transitions, marker counts, zoom)
// 3 = verbose (projection details, capture pipeline steps)
// 4 = trace (GPIO, hardware calls)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects debug output (e.g. to tee into the SSE broadcaster).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

func rebuild() {
	if level <= LevelOff {
		logger = nil
		return
	}
	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000", NoColor: true}
	l := zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "WayGo").Logger()
	logger = &l
}

// event returns a zerolog event when minLevel is enabled, nil otherwise.
// zerolog treats a nil *Event as a no-op, so callers can chain freely.
func event(minLevel int, zl zerolog.Level) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel || logger == nil {
		return nil
	}
	return logger.WithLevel(zl)
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	event(LevelInfo, zerolog.InfoLevel).Msgf(format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	event(LevelInfo, zerolog.InfoLevel).Str("section", title).Msg("═══════════════════════════════════════")
}

// Capture prints the outcome of a photo capture (level 1).
func Capture(id string, markers int, format string, size int) {
	event(LevelInfo, zerolog.InfoLevel).
		Str("capture", id).
		Int("markers", markers).
		Str("format", format).
		Int("bytes", size).
		Msg("photo captured")
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	event(LevelLive, zerolog.InfoLevel).Str("tag", "live").Msgf(format, args...)
}

// Transition prints a camera session state change (level 2).
func Transition(from, to string, err error) {
	e := event(LevelLive, zerolog.InfoLevel).Str("tag", "live").Str("from", from).Str("to", to)
	if err != nil {
		e = e.Err(err)
	}
	e.Msg("session transition")
}

// Zoom prints a zoom change (level 2).
func Zoom(zoom, applied float64) {
	event(LevelLive, zerolog.InfoLevel).Str("tag", "live").
		Float64("zoom", zoom).Float64("applied", applied).Msg("zoom")
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	event(LevelVerbose, zerolog.DebugLevel).Msgf(format, args...)
}

// Print prints a level 3 message (alias for Verbose).
func Print(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Printf is an alias for Print for compatibility.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	event(LevelVerbose, zerolog.DebugLevel).Msgf("%s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	event(LevelVerbose, zerolog.DebugLevel).Str("section", name).Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	event(LevelVerbose, zerolog.DebugLevel).Int("step", num).Msg(description)
}

// Marker prints a projected marker (level 3).
func Marker(id string, x, y, distance float64) {
	event(LevelVerbose, zerolog.DebugLevel).
		Str("waypoint", id).
		Float64("x", x).
		Float64("y", y).
		Float64("distance_m", distance).
		Msg("marker")
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	event(LevelInfo, zerolog.InfoLevel).Interface(name, value).Msg("")
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, hardware).
func Trace(format string, args ...interface{}) {
	event(LevelTrace, zerolog.TraceLevel).Msgf(format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	event(LevelTrace, zerolog.TraceLevel).
		Str("op", operation).
		Int("pin", pin).
		Interface("value", value).
		Msg("gpio")
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	event(LevelInfo, zerolog.ErrorLevel).Err(err).Msg("error")
}

// Elapsed prints how long an operation took (level 3).
func Elapsed(what string, start time.Time) {
	event(LevelVerbose, zerolog.DebugLevel).Dur("elapsed", time.Since(start)).Msg(what)
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
