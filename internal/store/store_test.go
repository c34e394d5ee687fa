package store

import (
	"path/filepath"
	"testing"
)

func TestOpen_InMemory(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	var n int
	if err := db.Raw("SELECT 1").Scan(&n).Error; err != nil || n != 1 {
		t.Errorf("SELECT 1 = %d, %v", n, err)
	}
}

func TestOpen_FileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "waygo.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Exec("CREATE TABLE t (id INTEGER)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := Close(db); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and find the table again.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer Close(db)
	if !db.Migrator().HasTable("t") {
		t.Error("table lost after reopen")
	}
}
