package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx (the latter
// opens a savepoint).
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OptionsBeginner is satisfied by *pgxpool.Pool and *pgxpool.Conn.
type OptionsBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// SnapshotTxOptions gives a read-only transaction that sees one consistent
// snapshot for all of its statements.
var SnapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// TxFromContext returns the transaction bound to ctx by RunInTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// RunInTx begins a transaction on b, runs fn with a context carrying the
// transaction, and commits when fn returns nil. Any error or panic from fn
// rolls the transaction back; the transaction is never left open.
func RunInTx(ctx context.Context, b Beginner, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	return run(ctx, tx, fn)
}

// RunInSnapshot is RunInTx with SnapshotTxOptions.
func RunInSnapshot(ctx context.Context, b OptionsBeginner, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := b.BeginTx(ctx, SnapshotTxOptions)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	return run(ctx, tx, fn)
}

func run(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, DBTxKey, tx), tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
