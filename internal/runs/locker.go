package runs

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
)

// withJobTxLock runs fn in a transaction holding pg_try_advisory_xact_lock for
// jobID, or returns (false, nil) when another session holds it.
//
// Under READ COMMITTED two concurrent claims can both pass the NOT EXISTS check.
// The lock lets one claim per job run the check at a time and a contender backs
// off instead of waiting. uq_runs_inflight still rejects a second in-flight row
// from any writer that bypasses ClaimRunning.
func withJobTxLock(ctx context.Context, sqlDB *sql.DB, jobID string, fn func(*sql.Tx) error) (bool, error) {
	tx, err := sqlDB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var locked bool
	if err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, lockKey(jobID)).Scan(&locked); err != nil {
		return false, err
	}
	if !locked {
		return false, nil
	}

	if err := fn(tx); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// lockKey produces a signed 64-bit advisory lock key from the job id.
func lockKey(jobID string) int64 {
	h := sha1.Sum([]byte("jobrun:" + jobID))
	return int64(binary.BigEndian.Uint64(h[0:8]))
}
