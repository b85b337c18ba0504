package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DefaultLockTimeout bounds how long a transaction waits for a row lock.
const DefaultLockTimeout = 5 * time.Second

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// txRunner runs units of work in a single transaction with a bounded lock wait.
type txRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	log         *zap.Logger
}

func newTxRunner(pool *pgxpool.Pool, lockTimeout time.Duration, log *zap.Logger) txRunner {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return txRunner{pool: pool, lockTimeout: lockTimeout, log: log}
}

// inTx begins a transaction, applies lock_timeout for its duration, runs fn
// and commits. Any error from fn rolls everything back. Lock contention
// failures come back wrapped in ErrLockTimeout; ErrInconsistentState is
// logged at error level under op before being returned.
func (r txRunner) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if err := fn(tx); err != nil {
		if errors.Is(err, ErrInconsistentState) {
			r.log.Error("stock invariant violated, transaction rolled back",
				zap.String("op", op), zap.Error(err))
		}
		return classifyPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// readSnapshot runs fn in a read-only REPEATABLE READ transaction so that
// multi-statement reads see one consistent snapshot.
func (r txRunner) readSnapshot(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
