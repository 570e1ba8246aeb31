package migrate

import (
	"testing"

	"spycats/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	first, err := Migrate(conn, db.SQLite)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if first < 1 {
		t.Fatalf("expected at least one migration applied, got version %d", first)
	}
	second, err := Migrate(conn, db.SQLite)
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if second != first {
		t.Fatalf("version changed on re-run: %d -> %d", first, second)
	}
	for _, table := range []string{"spy_cats", "missions", "targets", "events"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrationsExistForEveryDialect(t *testing.T) {
	for _, d := range []db.Dialect{db.SQLite, db.Postgres} {
		ms, err := loadMigrations(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if len(ms) == 0 {
			t.Fatalf("%s: no migrations", d)
		}
	}
}
