// Package store opens the on-device sqlite database shared by the
// waypoint store and the photo index.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cjeanneret/WayGo/internal/debug"
)

var pragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA busy_timeout = 5000;",
	"PRAGMA temp_store = MEMORY;",
}

// Open opens the database at path, creating its directory if needed.
// An empty path opens a private in-memory database.
func Open(path string) (*gorm.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn = path
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql interface: %w", err)
	}
	if path == "" {
		// Each connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		for _, pragma := range pragmas {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("set pragma: %w", err)
			}
		}
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if path == "" {
		debug.Verbose("Store: using in-memory sqlite")
	} else {
		debug.Info("Store: using sqlite at %s", path)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
