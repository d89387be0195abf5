package quota

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreReserveAdmitsWithinLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WithArgs("2026-03-14").
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(40))
	mock.ExpectExec("UPDATE quota_usage SET used").
		WithArgs(140, "2026-03-14").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	used, allowed, err := store.Reserve(context.Background(), "2026-03-14", 100, 10000)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !allowed {
		t.Fatalf("expected admission")
	}
	if used != 140 {
		t.Fatalf("expected used=140, got %d", used)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreReserveDeniesOverLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WithArgs("2026-03-14").
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(9999))
	mock.ExpectCommit()

	store := NewPGStore(db)
	used, allowed, err := store.Reserve(context.Background(), "2026-03-14", 100, 10000)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if allowed {
		t.Fatalf("expected denial when increment would exceed limit")
	}
	if used != 9999 {
		t.Fatalf("expected used unchanged at 9999, got %d", used)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreReleaseClampsAtZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("UPDATE quota_usage SET used = GREATEST").
		WithArgs(100, "2026-03-14").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	if err := store.Release(context.Background(), "2026-03-14", 100); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
