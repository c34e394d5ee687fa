// Package waypoints persists the active waypoint set in sqlite and imports
// seed files.
package waypoints

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/logic/ar"
	"github.com/cjeanneret/WayGo/internal/logic/geometry"
)

var (
	ErrNotFound        = errors.New("waypoint not found")
	ErrInvalidWaypoint = errors.New("invalid waypoint")
)

// record is the table row. Position keeps the user's ordering.
type record struct {
	Code      string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Lat       float64
	Lon       float64
	Type      string `gorm:"not null"`
	Position  int    `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (record) TableName() string { return "waypoints" }

func (r record) waypoint() ar.Waypoint {
	return ar.Waypoint{
		ID:    r.Code,
		Name:  r.Name,
		Point: geometry.GeoPoint{Lat: r.Lat, Lon: r.Lon},
		Type:  ar.WaypointType(r.Type),
	}
}

// Store is the sqlite-backed waypoint set.
type Store struct {
	db *gorm.DB
}

// New migrates the waypoints table and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrate waypoints: %w", err)
	}
	return &Store{db: db}, nil
}

// Validate checks a waypoint and fills its default type.
func Validate(wp *ar.Waypoint) error {
	wp.ID = strings.TrimSpace(wp.ID)
	if wp.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidWaypoint)
	}
	if wp.Point.Lat < -90 || wp.Point.Lat > 90 || wp.Point.Lon < -180 || wp.Point.Lon > 180 {
		return fmt.Errorf("%w: %s: coordinates %.6f,%.6f out of range", ErrInvalidWaypoint, wp.ID, wp.Point.Lat, wp.Point.Lon)
	}
	t, err := ar.ParseWaypointType(string(wp.Type))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidWaypoint, wp.ID, err)
	}
	wp.Type = t
	if wp.Name == "" {
		wp.Name = wp.ID
	}
	return nil
}

// Snapshot returns the waypoints in their stored order.
func (s *Store) Snapshot(ctx context.Context) ([]ar.Waypoint, error) {
	var rows []record
	if err := s.db.WithContext(ctx).Order("position, code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list waypoints: %w", err)
	}
	wps := make([]ar.Waypoint, len(rows))
	for i, r := range rows {
		wps[i] = r.waypoint()
	}
	return wps, nil
}

// Get returns one waypoint by code.
func (s *Store) Get(ctx context.Context, id string) (ar.Waypoint, error) {
	var r record
	err := s.db.WithContext(ctx).Where("code = ?", id).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ar.Waypoint{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ar.Waypoint{}, fmt.Errorf("get waypoint %s: %w", id, err)
	}
	return r.waypoint(), nil
}

// Upsert adds a waypoint at the end of the list, or updates it in place.
func (s *Store) Upsert(ctx context.Context, wp ar.Waypoint) error {
	if err := Validate(&wp); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsert(tx, wp)
	})
}

func upsert(tx *gorm.DB, wp ar.Waypoint) error {
	var existing record
	err := tx.Where("code = ?", wp.ID).Take(&existing).Error
	switch {
	case err == nil:
		existing.Name = wp.Name
		existing.Lat = wp.Point.Lat
		existing.Lon = wp.Point.Lon
		existing.Type = string(wp.Type)
		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("update waypoint %s: %w", wp.ID, err)
		}
		debug.Verbose("Waypoints: updated %s", wp.ID)
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		var last struct{ Max *int }
		if err := tx.Model(&record{}).Select("MAX(position) AS max").Scan(&last).Error; err != nil {
			return fmt.Errorf("next position: %w", err)
		}
		pos := 0
		if last.Max != nil {
			pos = *last.Max + 1
		}
		r := record{
			Code:     wp.ID,
			Name:     wp.Name,
			Lat:      wp.Point.Lat,
			Lon:      wp.Point.Lon,
			Type:     string(wp.Type),
			Position: pos,
		}
		if err := tx.Create(&r).Error; err != nil {
			return fmt.Errorf("create waypoint %s: %w", wp.ID, err)
		}
		debug.Verbose("Waypoints: added %s at position %d", wp.ID, pos)
		return nil
	default:
		return fmt.Errorf("lookup waypoint %s: %w", wp.ID, err)
	}
}

// Delete removes a waypoint.
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("code = ?", id).Delete(&record{})
	if res.Error != nil {
		return fmt.Errorf("delete waypoint %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Import upserts every waypoint in one transaction. Nothing is written if
// one of them is invalid.
func (s *Store) Import(ctx context.Context, wps []ar.Waypoint) (int, error) {
	wps = append([]ar.Waypoint(nil), wps...)
	for i := range wps {
		if err := Validate(&wps[i]); err != nil {
			return 0, err
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, wp := range wps {
			if err := upsert(tx, wp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	debug.Info("Waypoints: imported %d", len(wps))
	return len(wps), nil
}
