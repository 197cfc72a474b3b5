package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rishansujesh/jobrun/internal/db"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInFlight is returned by InsertRunning when the job already has an attempt in flight.
	ErrInFlight = errors.New("attempt already in flight")
	// ErrUnavailable tags every failure to reach or query the underlying database.
	ErrUnavailable = db.ErrUnavailable
)

// Store is the durable log of execution attempts. The in-flight marker
// (executed_at IS NULL) is the only cross-invocation coordination channel.
type Store interface {
	Migrate(ctx context.Context) error
	InsertRunning(ctx context.Context, jobID string, scheduledAt time.Time) (int64, error)
	ClaimRunning(ctx context.Context, jobID string, scheduledAt time.Time) (int64, bool, error)
	CompleteRun(ctx context.Context, runID int64, executedAt time.Time, status Status, output string) error
	IsRunning(ctx context.Context, jobID string) (bool, error)
	LastRun(ctx context.Context, jobID string) (*Run, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	ListRuns(ctx context.Context, p ListRunsParams) ([]Run, error)
	ReapStale(ctx context.Context, cutoff, at time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// SQLStore implements Store on SQLite or Postgres.
type SQLStore struct {
	DB        *sql.DB
	Dialect   db.Dialect
	DefaultTO time.Duration // default timeout per query
}

func NewStore(sqlDB *sql.DB, d db.Dialect) *SQLStore {
	return &SQLStore{DB: sqlDB, Dialect: d, DefaultTO: 5 * time.Second}
}

// Open connects to the configured database and ensures the schema exists.
func Open(ctx context.Context, cfg db.Config) (*SQLStore, error) {
	sqlDB, d, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := NewStore(sqlDB, d)
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) q(query string) string { return db.Rebind(s.Dialect, query) }

func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := db.Migrate(ctx, s.DB, s.Dialect)
	return err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()
	return db.Unavailable("ping", s.DB.PingContext(ctx))
}

func (s *SQLStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

/* ===================== Attempts ===================== */

const claimSQL = `
INSERT INTO runs (job_id, scheduled_at, status, output)
SELECT ?, ?, 'running', ''
WHERE NOT EXISTS (SELECT 1 FROM runs WHERE job_id = ? AND executed_at IS NULL)
RETURNING id;
`

// InsertRunning records a new in-flight attempt and returns its id.
// It fails with ErrInFlight if the job already has one.
func (s *SQLStore) InsertRunning(ctx context.Context, jobID string, scheduledAt time.Time) (int64, error) {
	id, ok, err := s.ClaimRunning(ctx, jobID, scheduledAt)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("job %q: %w", jobID, ErrInFlight)
	}
	return id, nil
}

// ClaimRunning atomically checks for an in-flight attempt and inserts one if
// there is none. ok is false when another attempt holds the job.
func (s *SQLStore) ClaimRunning(ctx context.Context, jobID string, scheduledAt time.Time) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()

	at := FormatTime(scheduledAt)
	if s.Dialect == db.Postgres {
		var id int64
		var inserted bool
		locked, err := withJobTxLock(ctx, s.DB, jobID, func(tx *sql.Tx) error {
			err := tx.QueryRowContext(ctx, s.q(claimSQL), jobID, at, jobID).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			inserted = true
			return nil
		})
		if err != nil {
			return 0, false, db.Unavailable("claim run", err)
		}
		return id, locked && inserted, nil
	}

	var id int64
	err := s.DB.QueryRowContext(ctx, s.q(claimSQL), jobID, at, jobID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, db.Unavailable("claim run", err)
	}
	return id, true, nil
}

// CompleteRun moves an in-flight attempt to a terminal status.
func (s *SQLStore) CompleteRun(ctx context.Context, runID int64, executedAt time.Time, status Status, output string) error {
	if !status.Terminal() {
		return fmt.Errorf("complete run %d: status %q is not terminal", runID, status)
	}
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()

	res, err := s.DB.ExecContext(ctx, s.q(`
UPDATE runs SET executed_at = ?, status = ?, output = ?
WHERE id = ? AND executed_at IS NULL;`),
		FormatTime(executedAt), string(status), output, runID)
	if err != nil {
		return db.Unavailable("complete run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) IsRunning(ctx context.Context, jobID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()

	var n int64
	err := s.DB.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM runs WHERE job_id = ? AND executed_at IS NULL`), jobID).Scan(&n)
	if err != nil {
		return false, db.Unavailable("is running", err)
	}
	return n > 0, nil
}

// LastRun returns the most recent attempt for jobID, or ErrNotFound.
func (s *SQLStore) LastRun(ctx context.Context, jobID string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()

	q := `
SELECT id, job_id, scheduled_at, executed_at, status, output
FROM runs
WHERE job_id = ?
ORDER BY scheduled_at DESC, id DESC
LIMIT 1;
`
	r, err := scanRun(s.DB.QueryRowContext(ctx, s.q(q), jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

/* ===================== Retention ===================== */

// DeleteOlderThan removes every run scheduled strictly before cutoff.
func (s *SQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()

	res, err := s.DB.ExecContext(ctx, s.q(`DELETE FROM runs WHERE scheduled_at < ?`), FormatTime(cutoff))
	if err != nil {
		return 0, db.Unavailable("delete old runs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReapStale fails in-flight attempts scheduled before cutoff, releasing their jobs.
func (s *SQLStore) ReapStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()

	res, err := s.DB.ExecContext(ctx, s.q(`
UPDATE runs SET executed_at = ?, status = 'failed', output = COALESCE(output, '') || ?
WHERE executed_at IS NULL AND scheduled_at < ?;`),
		FormatTime(at), "\nError: abandoned: attempt did not finish", FormatTime(cutoff))
	if err != nil {
		return 0, db.Unavailable("reap stale runs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

/* ===================== History ===================== */

type ListRunsParams struct {
	JobID  string
	Status Status
	Limit  int
}

// ListRuns returns runs newest first, optionally filtered by job and status.
func (s *SQLStore) ListRuns(ctx context.Context, p ListRunsParams) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.DefaultTO)
	defer cancel()

	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}

	var where []string
	var args []any
	if p.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, p.JobID)
	}
	if p.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(p.Status))
	}
	q := `SELECT id, job_id, scheduled_at, executed_at, status, output FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY scheduled_at DESC, id DESC LIMIT ?"
	args = append(args, p.Limit)

	rows, err := s.DB.QueryContext(ctx, s.q(q), args...)
	if err != nil {
		return nil, db.Unavailable("list runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("list runs", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r           Run
		scheduledAt string
		executedAt  sql.NullString
		status      string
		output      sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.JobID, &scheduledAt, &executedAt, &status, &output); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, db.Unavailable("scan run", err)
	}
	t, err := ParseTime(scheduledAt)
	if err != nil {
		return nil, fmt.Errorf("run %d: scheduled_at %q: %w", r.ID, scheduledAt, err)
	}
	r.ScheduledAt = t
	if executedAt.Valid {
		e, err := ParseTime(executedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %d: executed_at %q: %w", r.ID, executedAt.String, err)
		}
		r.ExecutedAt = &e
	}
	r.Status = Status(status)
	r.Output = output.String
	return &r, nil
}
