package pose

import (
	"context"
	"time"

	"github.com/cjeanneret/WayGo/internal/debug"
)

// Provider delivers location and heading samples asynchronously until ctx
// is cancelled. There is no guaranteed delivery rate.
type Provider interface {
	Run(ctx context.Context, sink Sink) error
}

// StaticProvider reports a fixed pose, refreshed periodically so the fix
// never goes stale. Used on the bench and in one-shot CLI captures.
type StaticProvider struct {
	Location Location
	Heading  Heading
	Every    time.Duration // refresh period; 0 = deliver once
}

// Run implements Provider.
func (p *StaticProvider) Run(ctx context.Context, sink Sink) error {
	debug.Verbose("Pose: static provider at %.6f,%.6f heading %.1f°",
		p.Location.Point.Lat, p.Location.Point.Lon, p.Heading.TrueHeading)

	deliver := func() {
		loc := p.Location
		loc.Time = time.Now()
		head := p.Heading
		head.Time = loc.Time
		sink.UpdateLocation(loc)
		sink.UpdateHeading(head)
	}
	deliver()

	if p.Every <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(p.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deliver()
		}
	}
}
