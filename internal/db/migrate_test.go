package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestApplyMigrationFileIsIdempotent(t *testing.T) {
	sqdb, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })

	migration := filepath.Join("..", "..", "migrations", "001_init.sql")
	if err := ApplyMigrationFile(sqdb, migration); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := ApplyMigrationFile(sqdb, migration); err != nil {
		t.Fatalf("second apply should be a no-op: %v", err)
	}

	var count int
	if err := sqdb.QueryRow(`SELECT COUNT(1) FROM stocks`).Scan(&count); err != nil {
		t.Fatalf("count stocks: %v", err)
	}
	if count == 0 {
		t.Fatal("expected seeded stock rows")
	}
}
