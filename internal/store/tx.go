package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/domain"
)

// ActiveRentalIndex is the partial unique index that keeps at most one
// unreturned rental per inventory copy.
const ActiveRentalIndex = "rental_one_active_per_copy"

const rollbackTimeout = 5 * time.Second

// WithTx runs fn inside a READ COMMITTED transaction. The transaction is
// committed when fn returns nil and rolled back on any error, panic or
// context cancellation. Returned errors are passed through Classify.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithReadTx runs fn inside a read-only REPEATABLE READ transaction so that
// every statement fn issues observes the same committed snapshot.
func (s *Store) WithReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) runTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) (err error) {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return Classify(fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			panic(p)
		}
		if err != nil {
			s.rollback(tx)
		}
	}()

	if err = fn(tx); err != nil {
		return Classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (s *Store) rollback(tx pgx.Tx) {
	// The caller's context may already be done; rollback must still reach the server.
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.Warn("store: rollback failed", zap.Error(err))
	}
}

// Classify maps driver errors onto the domain error taxonomy. Errors that
// already carry a domain kind are returned unchanged; unrecognised errors are
// returned as-is and treated as fatal by callers.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != domain.KindFatal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.LockNotAvailable,
		pgerrcode.QueryCanceled,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	case pgerrcode.UniqueViolation:
		if pgErr.ConstraintName == ActiveRentalIndex {
			return fmt.Errorf("%w: %w", domain.ErrAllocationRace, err)
		}
	}
	return err
}
