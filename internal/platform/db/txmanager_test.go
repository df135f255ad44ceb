package db

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/labflow/labflow/internal/platform/apperror"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRunInTx_Commit(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE lab_queue`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tm := NewTxManager(mock)
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		if TxFromContext(ctx) == nil {
			t.Fatal("expected transaction on context")
		}
		_, err := QuerierFrom(ctx, mock).Exec(ctx, "UPDATE lab_queue SET status = 'Processing'")
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tm := NewTxManager(mock)
	wantErr := apperror.Conflict("queue entry", "sample exists")
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRunInTx_RollbackOnPanic(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tm := NewTxManager(mock)
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic to propagate")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	}()
	_ = tm.RunInTx(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
}

func TestRunInTx_BeginFailureIsTransient(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	tm := NewTxManager(mock)
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	if !errors.Is(err, apperror.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRunInTx_NestedJoinsOuter(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tm := NewTxManager(mock)
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		outer := TxFromContext(ctx)
		return tm.RunInTx(ctx, func(inner context.Context) error {
			if TxFromContext(inner) != outer {
				t.Error("expected nested call to reuse outer transaction")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("RunInTx() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestQuerierFrom_FallsBackWithoutTx(t *testing.T) {
	mock := newMockPool(t)
	if QuerierFrom(context.Background(), mock) != Querier(mock) {
		t.Error("expected fallback querier")
	}
}
