// Package photos is the on-device photo library: encoded files in a
// directory plus a sqlite index.
package photos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/imaging"
	"github.com/cjeanneret/WayGo/internal/logic/capture"
)

var ErrNotFound = errors.New("photo not found")

// Entry is the indexed metadata of a saved photo.
type Entry struct {
	ID       string    `json:"id" gorm:"primaryKey"`
	File     string    `json:"file" gorm:"not null"`
	Format   string    `json:"format"`
	Filter   string    `json:"filter"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Markers  int       `json:"markers"`
	Degraded bool      `json:"degraded"`
	Zoom     float64   `json:"zoom"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
	Heading  *float64  `json:"heading,omitempty"`
	Bytes    int       `json:"bytes"`
	TakenAt  time.Time `json:"taken_at" gorm:"index"`
}

func (Entry) TableName() string { return "photos" }

// ContentType returns the MIME type of the stored file.
func (e Entry) ContentType() string { return imaging.ContentType(e.Format) }

// ParseAccess maps the storage.authorization setting.
func ParseAccess(s string) (capture.StorageAccess, error) {
	switch s {
	case "", "granted":
		return capture.AccessGranted, nil
	case "denied":
		return capture.AccessDenied, nil
	case "restricted":
		return capture.AccessRestricted, nil
	}
	return capture.AccessDenied, fmt.Errorf("unknown storage authorization %q", s)
}

// Library implements capture.PhotoStore.
type Library struct {
	db     *gorm.DB
	dir    string
	access capture.StorageAccess
}

// New migrates the index and returns a library writing into dir.
func New(db *gorm.DB, dir string, access capture.StorageAccess) (*Library, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate photos: %w", err)
	}
	return &Library{db: db, dir: dir, access: access}, nil
}

// Dir returns the photo directory.
func (l *Library) Dir() string { return l.dir }

// RequestAddAccess answers with the configured add-only access.
func (l *Library) RequestAddAccess(context.Context) (capture.StorageAccess, error) {
	return l.access, nil
}

// Save writes the encoded photo and indexes it. A failed index write
// removes the file again.
func (l *Library) Save(ctx context.Context, p *capture.Photo) error {
	if len(p.Encoded) == 0 {
		return fmt.Errorf("photo %s has no encoded data", p.Request.ID)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create photo dir: %w", err)
	}

	id := p.Request.ID.String()
	name := id + imaging.Extension(p.Format)
	path := filepath.Join(l.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, p.Encoded, 0o644); err != nil {
		return fmt.Errorf("write photo: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename photo: %w", err)
	}

	e := Entry{
		ID:       id,
		File:     name,
		Format:   p.Format,
		Filter:   p.Request.Filter.String(),
		Markers:  len(p.Markers),
		Degraded: p.Degraded,
		Zoom:     p.Request.Zoom,
		Bytes:    len(p.Encoded),
		TakenAt:  p.TakenAt,
	}
	if p.Image != nil {
		e.Width, e.Height = p.Image.Bounds().Dx(), p.Image.Bounds().Dy()
	}
	if snap := p.Request.Snapshot; snap != nil && snap.Pose != nil {
		lat, lon, hdg := snap.Pose.Point.Lat, snap.Pose.Point.Lon, snap.Pose.Heading
		e.Lat, e.Lon, e.Heading = &lat, &lon, &hdg
	}
	if err := l.db.WithContext(ctx).Create(&e).Error; err != nil {
		os.Remove(path)
		return fmt.Errorf("index photo: %w", err)
	}
	debug.Verbose("Photos: saved %s (%d bytes)", path, len(p.Encoded))
	return nil
}

// Lookup returns the index entry for id.
func (l *Library) Lookup(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := l.db.WithContext(ctx).Where("id = ?", id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("lookup photo %s: %w", id, err)
	}
	return e, nil
}

// Path returns the file path of an entry.
func (l *Library) Path(e Entry) string { return filepath.Join(l.dir, e.File) }

// List returns the most recent entries first.
func (l *Library) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	if err := l.db.WithContext(ctx).Order("taken_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return entries, nil
}
