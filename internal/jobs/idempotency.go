package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ExecutionKey = sha256(job_id + first_attempt_time_iso).
// It is stable for one logical execution across all of its attempts and
// lets downstream consumers dedupe failure events.
func ExecutionKey(jobID string, firstAttempt time.Time) string {
	payload := jobID + "\x00" + firstAttempt.UTC().Truncate(time.Second).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
