package repositories

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// retryBackoff is the pause before the single retry of a transient failure.
const retryBackoff = 100 * time.Millisecond

// withRetry runs op and retries it once after a short backoff when the
// failure looks transient. Only statements that are safe to repeat go
// through here: reads, and the ledger insert whose unique constraint makes
// a second execution a no-op. The conditional balance update is never
// blindly retried; an ambiguous failure there is resolved by the pending
// sweep instead.
func withRetry(op func() error) error {
	err := op()
	if err == nil || !isTransient(err) {
		return err
	}
	time.Sleep(retryBackoff)
	return op()
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	// A PgError means the server received and rejected the statement;
	// retrying would produce the same answer.
	var pgErr *pgconn.PgError
	return !errors.As(err, &pgErr)
}
