package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

type fakeOptionsBeginner struct {
	tx   *fakeTx
	opts *pgx.TxOptions
}

func (b *fakeOptionsBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = &opts
	return b.tx, nil
}

func TestRunInTx_Commits(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	err := RunInTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		if TxFromContext(ctx) == nil {
			t.Error("expected transaction on context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.tx.committed || b.tx.rolledBack {
		t.Errorf("expected commit only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := RunInTx(context.Background(), b, func(context.Context, pgx.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Errorf("expected rollback only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestRunInTx_RollsBackOnPanic(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
		if !b.tx.rolledBack {
			t.Error("expected rollback after panic")
		}
	}()
	_ = RunInTx(context.Background(), b, func(context.Context, pgx.Tx) error { panic("kaboom") })
}

func TestRunInTx_CommitFailure(t *testing.T) {
	commitErr := errors.New("serialization failure")
	b := &fakeBeginner{tx: &fakeTx{commitErr: commitErr}}
	err := RunInTx(context.Background(), b, func(context.Context, pgx.Tx) error { return nil })
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestRunInTx_BeginFailure(t *testing.T) {
	b := &fakeBeginner{err: errors.New("pool exhausted")}
	called := false
	err := RunInTx(context.Background(), b, func(context.Context, pgx.Tx) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("expected begin error without running fn, got err=%v called=%v", err, called)
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestRunInSnapshot_UsesReadOnlyRepeatableRead(t *testing.T) {
	b := &fakeOptionsBeginner{tx: &fakeTx{}}
	err := RunInSnapshot(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		if TxFromContext(ctx) == nil {
			t.Error("expected transaction on context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.opts == nil {
		t.Fatal("expected BeginTx to be called")
	}
	if b.opts.IsoLevel != pgx.RepeatableRead || b.opts.AccessMode != pgx.ReadOnly {
		t.Errorf("unexpected options: %+v", *b.opts)
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
}

func TestRunInSnapshot_RollsBackOnError(t *testing.T) {
	b := &fakeOptionsBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	if err := RunInSnapshot(context.Background(), b, func(context.Context, pgx.Tx) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback")
	}
}
