package pose

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/WayGo/internal/logic/geometry"
)

func TestTracker_NoPoseUntilBothSamples(t *testing.T) {
	tr := NewTracker(0)
	if _, ok := tr.Current(); ok {
		t.Fatal("expected no pose on a fresh tracker")
	}

	tr.UpdateLocation(Location{Point: geometry.GeoPoint{Lat: 1, Lon: 2}})
	if _, ok := tr.Current(); ok {
		t.Fatal("expected no pose without a heading")
	}

	tr.UpdateHeading(Heading{TrueHeading: 90})
	p, ok := tr.Current()
	if !ok {
		t.Fatal("expected a pose once location and heading are known")
	}
	if p.Point.Lat != 1 || p.Point.Lon != 2 || p.Heading != 90 {
		t.Errorf("pose = %+v, want lat=1 lon=2 heading=90", p)
	}
}

func TestTracker_LatestSampleWins(t *testing.T) {
	tr := NewTracker(0)
	tr.UpdateLocation(Location{Point: geometry.GeoPoint{Lat: 1}, Altitude: 10})
	tr.UpdateLocation(Location{Point: geometry.GeoPoint{Lat: 2}, Altitude: 20, HorizontalAccuracy: 4})
	tr.UpdateHeading(Heading{TrueHeading: 10})
	tr.UpdateHeading(Heading{TrueHeading: 370, Accuracy: 3})

	p, _ := tr.Current()
	if p.Point.Lat != 2 || p.Altitude != 20 || p.HorizontalAccuracy != 4 {
		t.Errorf("location not replaced: %+v", p)
	}
	if p.Heading != 10 || p.HeadingAccuracy != 3 {
		t.Errorf("heading = %v ±%v, want normalized 10 ±3", p.Heading, p.HeadingAccuracy)
	}
}

func TestTracker_StaleFixIsAbsent(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(5 * time.Second)
	tr.now = func() time.Time { return now }

	tr.UpdateLocation(Location{Point: geometry.GeoPoint{Lat: 1}, Time: now.Add(-2 * time.Second)})
	tr.UpdateHeading(Heading{TrueHeading: 0})
	if _, ok := tr.Current(); !ok {
		t.Fatal("2s old fix should be current")
	}

	now = now.Add(10 * time.Second)
	if _, ok := tr.Current(); ok {
		t.Error("12s old fix should be treated as absent")
	}
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	tr := NewTracker(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			tr.UpdateLocation(Location{Point: geometry.GeoPoint{Lat: float64(i)}})
		}(i)
		go func(i int) {
			defer wg.Done()
			tr.UpdateHeading(Heading{TrueHeading: float64(i)})
		}(i)
		go func() {
			defer wg.Done()
			tr.Current()
		}()
	}
	wg.Wait()
	if _, ok := tr.Current(); !ok {
		t.Error("expected a pose after concurrent updates")
	}
}

func TestStaticProvider_DeliversPose(t *testing.T) {
	tr := NewTracker(0)
	p := &StaticProvider{
		Location: Location{Point: geometry.GeoPoint{Lat: 37.7749, Lon: -122.4194}},
		Heading:  Heading{TrueHeading: 45},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, tr) }()

	deadline := time.After(time.Second)
	for {
		if pose, ok := tr.Current(); ok {
			if pose.Heading != 45 {
				t.Errorf("heading = %v, want 45", pose.Heading)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for static pose")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
