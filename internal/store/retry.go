package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// The DSN busy_timeout makes sqlite itself wait briefly for the external
// writer. These helpers add one more bounded round of retries on top, so a
// lock held across our busy window degrades into a reported failure instead
// of an immediate one.

func retryDelay(attempt int) time.Duration {
	delay := time.Duration(attempt+1) * 40 * time.Millisecond
	if delay > 300*time.Millisecond {
		delay = 300 * time.Millisecond
	}
	return delay
}

func (s *Store) retryBudgetLeft(ctx context.Context, start time.Time, attempt int) bool {
	if s.lockTimeout <= 0 {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return time.Since(start)+retryDelay(attempt) < s.lockTimeout
}

func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	slog.Debug("sql exec", "query", query, "args", args)
	start := time.Now()
	for attempt := 0; ; attempt++ {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil || !isSQLiteBusy(err) {
			return res, err
		}
		if !s.retryBudgetLeft(ctx, start, attempt) {
			slog.Debug("sql exec busy", "attempts", attempt+1, "err", err)
			return nil, err
		}
		time.Sleep(retryDelay(attempt))
	}
}

func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	slog.Debug("sql query", "query", query, "args", args)
	start := time.Now()
	for attempt := 0; ; attempt++ {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err == nil || !isSQLiteBusy(err) {
			return rows, err
		}
		if !s.retryBudgetLeft(ctx, start, attempt) {
			slog.Debug("sql query busy", "attempts", attempt+1, "err", err)
			return nil, err
		}
		time.Sleep(retryDelay(attempt))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type retryRow struct {
	store *Store
	ctx   context.Context
	query func() *sql.Row
}

func (r retryRow) Scan(dest ...any) error {
	start := time.Now()
	for attempt := 0; ; attempt++ {
		err := r.query().Scan(dest...)
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		if !r.store.retryBudgetLeft(r.ctx, start, attempt) {
			slog.Debug("sql query row busy", "attempts", attempt+1, "err", err)
			return err
		}
		time.Sleep(retryDelay(attempt))
	}
}

func (s *Store) queryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	slog.Debug("sql query row", "query", query, "args", args)
	return retryRow{
		store: s,
		ctx:   ctx,
		query: func() *sql.Row { return s.db.QueryRowContext(ctx, query, args...) },
	}
}

// beginTx starts a write transaction, retrying briefly when the external
// process holds the lock.
func (s *Store) beginTx(ctx context.Context, op string) (*sql.Tx, time.Time, error) {
	start := time.Now()
	slog.Debug("sql tx begin", "op", op)
	for attempt := 0; ; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err == nil || !isSQLiteBusy(err) {
			return tx, start, err
		}
		if !s.retryBudgetLeft(ctx, start, attempt) {
			slog.Debug("sql tx begin busy", "op", op, "attempts", attempt+1, "err", err)
			return nil, start, err
		}
		time.Sleep(retryDelay(attempt))
	}
}

func (s *Store) commitTx(tx *sql.Tx, op string, start time.Time) error {
	err := tx.Commit()
	slog.Debug("sql tx commit", "op", op, "duration_ms", time.Since(start).Milliseconds(), "err", err)
	return err
}

// rollbackTx releases the write lock on every failure path. Rolling back an
// already finished transaction is not an error worth reporting.
func (s *Store) rollbackTx(tx *sql.Tx, op string, start time.Time) {
	err := tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		slog.Warn("sql tx rollback failed", "op", op, "duration_ms", time.Since(start).Milliseconds(), "err", err)
		return
	}
	slog.Debug("sql tx rollback", "op", op, "duration_ms", time.Since(start).Milliseconds())
}
