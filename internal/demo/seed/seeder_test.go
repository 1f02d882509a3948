package seed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRunSeedsAllTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("TRUNCATE myaso.products").WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO myaso.products").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO myaso.price_history").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for range defaultPrompts {
		mock.ExpectExec("INSERT INTO myaso.prompts").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for range defaultSystemValues {
		mock.ExpectExec("INSERT INTO myaso.system").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO myaso.clients").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO myaso.orders").WillReturnResult(sqlmock.NewResult(1, 1))
	}

	cfg := DefaultConfig()
	cfg.DSN = "postgres://localhost:5432/myaso"
	cfg.ProductCount = 2
	cfg.PricePoints = 1
	cfg.ClientCount = 2
	cfg.OrderCount = 3
	cfg.Truncate = true
	cfg.Seed = 42

	svc, err := NewService(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), db)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.generator.now = func() time.Time { return time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC) }

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunStopsOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO myaso.products").WillReturnError(errors.New("connection refused"))

	cfg := DefaultConfig()
	cfg.DSN = "postgres://localhost:5432/myaso"
	cfg.ProductCount = 2
	cfg.Seed = 42

	svc, err := NewService(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), db)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	err = svc.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want insert failure")
	}
	if !strings.Contains(err.Error(), "insert product") {
		t.Fatalf("error = %v", err)
	}
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewService(cfg, nil, nil); err == nil {
		t.Fatal("NewService() error = nil, want missing database error")
	}
}
