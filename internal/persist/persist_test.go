package persist

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestDefaultConfigFillsKnobs(t *testing.T) {
	cfg := DefaultConfig("postgres://example")
	if cfg.RetentionDays != 14 {
		t.Fatalf("RetentionDays = %d, want 14", cfg.RetentionDays)
	}
	if cfg.BatchSize != 200 || cfg.BatchInterval != 2*time.Second {
		t.Fatalf("unexpected batch defaults: %+v", cfg)
	}
}

func TestSpotsWithIssuesScansRows(t *testing.T) {
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer rawDB.Close()

	rows := sqlmock.NewRows([]string{"date_time", "dx_callsign", "spotter_callsign", "frequency", "band", "mode", "comment", "issues"}).
		AddRow(int64(1700000000), "VE2PID", "K5TR", 14056.0, "20", "CW", "CQ", "duplicate key")
	mock.ExpectQuery("select date_time, dx_callsign, spotter_callsign, frequency, band, mode, comment, issues").
		WillReturnRows(rows)

	store := &Store{db: sqlx.NewDb(rawDB, "sqlmock")}
	got, err := store.SpotsWithIssues(context.Background(), 10)
	if err != nil {
		t.Fatalf("SpotsWithIssues: %v", err)
	}
	if len(got) != 1 || got[0].DXCallsign != "VE2PID" || got[0].Issues != "duplicate key" {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSpotsWithIssuesZeroLimitSkipsQuery(t *testing.T) {
	rawDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer rawDB.Close()

	store := &Store{db: sqlx.NewDb(rawDB, "sqlmock")}
	got, err := store.SpotsWithIssues(context.Background(), 0)
	if err != nil {
		t.Fatalf("SpotsWithIssues: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil rows for zero limit, got %+v", got)
	}
}
