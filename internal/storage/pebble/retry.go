package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLocked indicates the database directory is held by another process.
// Pebble reports this only as an opaque error string; the classification
// is confined to this package so callers can test with errors.Is.
var ErrLocked = errors.New("pebble: database locked by another process")

func isLockHeld(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "LOCK") || strings.Contains(msg, "lock held")
}

// RetryOptions controls how OpenRetry waits out a held lock.
type RetryOptions struct {
	// Attempts is the total number of open attempts. Zero or negative means 1.
	Attempts int
	// Delay is the wait between attempts.
	Delay time.Duration
	// OnRetry is called before each wait with the attempt number (1-based)
	// and the open error. Optional.
	OnRetry func(attempt int, err error)
}

// OpenRetry opens the database, retrying while the directory lock is held
// by another process. This covers restarts where the previous owner has not
// yet released the lock. Errors other than a held lock fail immediately.
func OpenRetry(ctx context.Context, opts Options, retry RetryOptions) (*DB, error) {
	attempts := retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := Open(opts)
		if err == nil {
			return db, nil
		}
		if !isLockHeld(err) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if retry.OnRetry != nil {
			retry.OnRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry.Delay):
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrLocked, lastErr)
}
