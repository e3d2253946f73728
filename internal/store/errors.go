package store

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound means an identity or name does not resolve to a visible
	// row. It is a valid outcome, not a failure.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument covers malformed identities, too-short queries and
	// empty update requests.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBackendUnavailable means the database or search index could not be
	// reached, or a write lock could not be acquired in time. Retryable.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrIntegrityViolation means a write would break a foreign-key or
	// visibility invariant.
	ErrIntegrityViolation = errors.New("integrity violation")
)

func isSQLiteBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

func isSQLiteConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// classify maps low-level sqlite failures onto the store error taxonomy.
// Errors that already carry a taxonomy sentinel pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrIntegrityViolation):
		return err
	case isSQLiteBusy(err):
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	case isSQLiteConstraint(err):
		return fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
	default:
		return err
	}
}
