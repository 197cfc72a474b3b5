package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, d, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "jobs.sqlite")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if d != SQLite {
		t.Fatalf("want sqlite dialect, got %q", d)
	}

	first, err := Migrate(ctx, db, d)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected migrations to be applied on a fresh database")
	}
	second, err := Migrate(ctx, db, d)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected nothing applied on second call, got %v", second)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		t.Fatalf("runs table missing: %v", err)
	}
}

func TestMigrate_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	db, d, err := Open(ctx, Config{Path: Memory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := Migrate(ctx, db, d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE schema_migrations SET checksum = 'tampered'`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := Migrate(ctx, db, d); err == nil {
		t.Fatalf("expected checksum mismatch error")
	}
}

func TestMigrations_BothDialects(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres} {
		ms, err := Migrations(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if len(ms) < 2 {
			t.Fatalf("%s: expected at least 2 migrations, got %d", d, len(ms))
		}
		if ms[0].Name > ms[1].Name {
			t.Fatalf("%s: migrations not sorted", d)
		}
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Driver: "oracle"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpen_PostgresWithoutDSN(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Driver: "postgres"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM runs WHERE job_id = ? AND scheduled_at < ?`
	if got := Rebind(SQLite, q); got != q {
		t.Fatalf("sqlite should be untouched, got %s", got)
	}
	want := `SELECT * FROM runs WHERE job_id = $1 AND scheduled_at < $2`
	if got := Rebind(Postgres, q); got != want {
		t.Fatalf("want %s got %s", want, got)
	}
}
