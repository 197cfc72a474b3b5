package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Name     string
	SQL      string
	Checksum string
}

// Migrations lists the embedded migrations for a dialect in apply order.
func Migrations(d Dialect) ([]Migration, error) {
	dir := path.Join("migrations", string(d))
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(b)
		out = append(out, Migration{
			Name:     e.Name(),
			SQL:      string(b),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Migrate applies pending migrations and records them in schema_migrations.
// It is idempotent and safe to call on every process start. A migration whose
// recorded checksum differs from the embedded file is an error.
// It returns the names of the migrations applied by this call.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) ([]string, error) {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  filename TEXT PRIMARY KEY,
  checksum TEXT NOT NULL,
  applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`)
	if err != nil {
		return nil, Unavailable("create schema_migrations", err)
	}

	files, err := Migrations(d)
	if err != nil {
		return nil, err
	}

	applied := map[string]string{}
	rows, err := db.QueryContext(ctx, `SELECT filename, checksum FROM schema_migrations`)
	if err != nil {
		return nil, Unavailable("select schema_migrations", err)
	}
	for rows.Next() {
		var fn, sum string
		if err := rows.Scan(&fn, &sum); err != nil {
			rows.Close()
			return nil, Unavailable("scan schema_migrations", err)
		}
		applied[fn] = sum
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, Unavailable("scan schema_migrations", err)
	}
	rows.Close()

	var done []string
	for _, m := range files {
		if prev, ok := applied[m.Name]; ok {
			if prev != m.Checksum {
				return done, fmt.Errorf("migration %s already applied with different checksum (got %s, have %s)", m.Name, m.Checksum, prev)
			}
			continue
		}
		if err := apply(ctx, db, d, m); err != nil {
			return done, err
		}
		done = append(done, m.Name)
	}
	return done, nil
}

func apply(ctx context.Context, db *sql.DB, d Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Unavailable("begin migration", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, Rebind(d, `INSERT INTO schema_migrations (filename, checksum) VALUES (?, ?)`), m.Name, m.Checksum); err != nil {
		return Unavailable("record "+m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return Unavailable("commit "+m.Name, err)
	}
	return nil
}
