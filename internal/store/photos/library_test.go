package photos

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"testing"
	"time"

	"github.com/cjeanneret/WayGo/internal/imaging"
	"github.com/cjeanneret/WayGo/internal/logic/ar"
	"github.com/cjeanneret/WayGo/internal/logic/capture"
	"github.com/cjeanneret/WayGo/internal/logic/geometry"
	"github.com/cjeanneret/WayGo/internal/logic/pose"
	"github.com/cjeanneret/WayGo/internal/store"
)

func newTestLibrary(t *testing.T, access capture.StorageAccess) *Library {
	t.Helper()
	db, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close(db) })
	lib, err := New(db, t.TempDir(), access)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return lib
}

func testPhoto(takenAt time.Time) *capture.Photo {
	snap := &ar.Snapshot{Pose: &pose.Pose{Point: geometry.GeoPoint{Lat: 37.7749, Lon: -122.4194}, Heading: 12}}
	return &capture.Photo{
		Request: capture.NewRequest(capture.NightVision, snap, 2.5),
		Image:   image.NewNRGBA(image.Rect(0, 0, 40, 30)),
		Encoded: []byte("not really a webp"),
		Format:  imaging.FormatWebP,
		TakenAt: takenAt,
	}
}

func TestParseAccess(t *testing.T) {
	tests := []struct {
		in      string
		want    capture.StorageAccess
		wantErr bool
	}{
		{"", capture.AccessGranted, false},
		{"granted", capture.AccessGranted, false},
		{"denied", capture.AccessDenied, false},
		{"restricted", capture.AccessRestricted, false},
		{"maybe", capture.AccessDenied, true},
	}
	for _, tt := range tests {
		got, err := ParseAccess(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAccess(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestLibrary_RequestAddAccess(t *testing.T) {
	lib := newTestLibrary(t, capture.AccessRestricted)
	got, err := lib.RequestAddAccess(context.Background())
	if err != nil || got != capture.AccessRestricted {
		t.Errorf("access = %v, %v", got, err)
	}
}

func TestLibrary_SaveAndLookup(t *testing.T) {
	lib := newTestLibrary(t, capture.AccessGranted)
	ctx := context.Background()
	p := testPhoto(time.Now())

	if err := lib.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	id := p.Request.ID.String()
	e, err := lib.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.File != id+".webp" || e.Filter != "night_vision" || e.Width != 40 || e.Height != 30 || e.Zoom != 2.5 {
		t.Errorf("entry = %+v", e)
	}
	if e.Lat == nil || *e.Lat != 37.7749 || e.Heading == nil || *e.Heading != 12 {
		t.Errorf("pose not indexed: %+v", e)
	}
	if e.ContentType() != "image/webp" {
		t.Errorf("content type = %s", e.ContentType())
	}

	data, err := os.ReadFile(lib.Path(e))
	if err != nil || !bytes.Equal(data, p.Encoded) {
		t.Errorf("file content = %q, %v", data, err)
	}
}

func TestLibrary_LookupMissing(t *testing.T) {
	lib := newTestLibrary(t, capture.AccessGranted)
	if _, err := lib.Lookup(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLibrary_SaveRejectsEmptyPhoto(t *testing.T) {
	lib := newTestLibrary(t, capture.AccessGranted)
	p := testPhoto(time.Now())
	p.Encoded = nil
	if err := lib.Save(context.Background(), p); err == nil {
		t.Error("expected error for empty photo")
	}
}

func TestLibrary_ListNewestFirst(t *testing.T) {
	lib := newTestLibrary(t, capture.AccessGranted)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var want []string
	for i := 0; i < 3; i++ {
		p := testPhoto(base.Add(time.Duration(i) * time.Minute))
		if err := lib.Save(ctx, p); err != nil {
			t.Fatal(err)
		}
		want = append([]string{p.Request.ID.String()}, want...)
	}

	got, err := lib.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != want[0] || got[1].ID != want[1] {
		t.Errorf("List = %v, want newest two of %v", got, want)
	}
}
