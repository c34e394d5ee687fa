// Package metrics counts session transitions, recoveries and capture
// outcomes with OpenTelemetry instruments. A local tally of the same
// counters backs the status read model.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cjeanneret/WayGo/internal/logic/capture"
	"github.com/cjeanneret/WayGo/internal/logic/session"
)

const instrumentationName = "github.com/cjeanneret/WayGo/internal/metrics"

// Capture outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeDegraded      = "degraded"
	OutcomeInFlight      = "in_flight"
	OutcomeFailed        = "failed"
	OutcomeStorageDenied = "storage_denied"
	OutcomeStorageFailed = "storage_failed"
)

// Recorder holds the instruments.
type Recorder struct {
	transitions metric.Int64Counter
	recoveries  metric.Int64Counter
	captures    metric.Int64Counter
	latency     metric.Float64Histogram

	mu    sync.Mutex
	tally map[string]int64
}

// New creates the instruments on m. A nil meter uses the global provider.
func New(m metric.Meter) (*Recorder, error) {
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	r := &Recorder{tally: make(map[string]int64)}
	var err error

	r.transitions, err = m.Int64Counter(
		"waygo.session.transitions",
		metric.WithDescription("Camera session state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}
	r.recoveries, err = m.Int64Counter(
		"waygo.session.recoveries",
		metric.WithDescription("Reconfigurations started from the failed state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating recoveries counter: %w", err)
	}
	r.captures, err = m.Int64Counter(
		"waygo.capture.requests",
		metric.WithDescription("Capture requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating captures counter: %w", err)
	}
	r.latency, err = m.Float64Histogram(
		"waygo.capture.duration",
		metric.WithDescription("Shutter to stored photo"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating capture histogram: %w", err)
	}
	return r, nil
}

// Transition records one published session event.
func (r *Recorder) Transition(ctx context.Context, ev session.Event) {
	r.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", ev.From.String()),
		attribute.String("to", ev.To.String()),
	))
	r.count("transitions." + ev.To.String())
	if ev.From == session.Failed && ev.To == session.Configuring {
		r.recoveries.Add(ctx, 1)
		r.count("recoveries")
	}
}

// Capture records the outcome of one capture request.
func (r *Recorder) Capture(ctx context.Context, photo *capture.Photo, err error, took time.Duration) {
	outcome := Outcome(photo, err)
	r.captures.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err == nil {
		r.latency.Record(ctx, float64(took.Microseconds())/1000)
	}
	r.count("captures." + outcome)
}

// Outcome classifies a capture result.
func Outcome(photo *capture.Photo, err error) string {
	switch {
	case err == nil && photo != nil && photo.Degraded:
		return OutcomeDegraded
	case err == nil:
		return OutcomeOK
	case errors.Is(err, capture.ErrCaptureInFlight):
		return OutcomeInFlight
	case errors.Is(err, capture.ErrStorageDenied):
		return OutcomeStorageDenied
	case errors.Is(err, capture.ErrStorageSaveFailed):
		return OutcomeStorageFailed
	default:
		return OutcomeFailed
	}
}

func (r *Recorder) count(key string) {
	r.mu.Lock()
	r.tally[key]++
	r.mu.Unlock()
}

// Counts returns a copy of the local tally, keyed like
// "transitions.running", "recoveries" or "captures.ok".
func (r *Recorder) Counts() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.tally))
	for k, v := range r.tally {
		out[k] = v
	}
	return out
}
