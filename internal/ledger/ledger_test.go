package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type execCall struct {
	query string
	args  []any
}

type stubDB struct {
	calls []execCall
	err   error
}

func (s *stubDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.calls = append(s.calls, execCall{query: query, args: args})
	if s.err != nil {
		return nil, s.err
	}
	return driverResult(1), nil
}

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, errors.New("unsupported") }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }

func validEntry() Entry {
	started := time.Date(2023, 9, 1, 10, 0, 0, 0, time.UTC)
	return Entry{
		RunID:       uuid.NewString(),
		ProductID:   "abc-123",
		ProductName: "S5P_NO2_20230901",
		Path:        "data/S5P_NO2_20230901.zip",
		Bytes:       2048,
		Status:      StatusDownloaded,
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &stubDB{}
	l, err := New(db)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if err := l.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() err=%v", err)
	}
	if len(db.calls) != len(schema) {
		t.Fatalf("statements=%d, want %d", len(db.calls), len(schema))
	}
	if !strings.Contains(db.calls[0].query, "CREATE TABLE IF NOT EXISTS product_downloads") {
		t.Fatalf("first statement=%s", db.calls[0].query)
	}
}

func TestRecordInsertsRow(t *testing.T) {
	db := &stubDB{}
	l, _ := New(db)
	e := validEntry()
	if err := l.Record(context.Background(), e); err != nil {
		t.Fatalf("Record() err=%v", err)
	}
	if len(db.calls) != 1 {
		t.Fatalf("calls=%d, want 1", len(db.calls))
	}
	call := db.calls[0]
	if !strings.Contains(call.query, "INSERT INTO product_downloads") {
		t.Fatalf("query=%s", call.query)
	}
	if len(call.args) != 9 {
		t.Fatalf("args=%d, want 9", len(call.args))
	}
	if call.args[0] != e.RunID || call.args[1] != "abc-123" || call.args[5] != "downloaded" {
		t.Fatalf("args=%v", call.args)
	}
	if errText := call.args[6].(sql.NullString); errText.Valid {
		t.Fatalf("error column should be NULL for a success, got %v", errText)
	}
}

func TestRecordFailureKeepsError(t *testing.T) {
	db := &stubDB{}
	l, _ := New(db)
	e := validEntry()
	e.Status = StatusFailed
	e.Bytes = 0
	e.Error = " transfer failed: status 404 "
	e.FinishedAt = time.Time{}
	if err := l.Record(context.Background(), e); err != nil {
		t.Fatalf("Record() err=%v", err)
	}
	errText := db.calls[0].args[6].(sql.NullString)
	if !errText.Valid || errText.String != "transfer failed: status 404" {
		t.Fatalf("error column=%v", errText)
	}
	if finished := db.calls[0].args[8].(time.Time); finished.IsZero() {
		t.Fatalf("finished_at should default to now")
	}
}

func TestRecordRejectsInvalidEntry(t *testing.T) {
	db := &stubDB{}
	l, _ := New(db)

	bad := validEntry()
	bad.RunID = "run-1"
	if err := l.Record(context.Background(), bad); err == nil {
		t.Fatalf("Record() expected error for non-uuid run id")
	}

	bad = validEntry()
	bad.Status = "skipped"
	if err := l.Record(context.Background(), bad); err == nil {
		t.Fatalf("Record() expected error for unknown status")
	}

	bad = validEntry()
	bad.FinishedAt = bad.StartedAt.Add(-time.Second)
	if err := l.Record(context.Background(), bad); err == nil {
		t.Fatalf("Record() expected error for finished before started")
	}

	if len(db.calls) != 0 {
		t.Fatalf("invalid entries must not reach the database")
	}
}

func TestRecordWrapsDatabaseError(t *testing.T) {
	dbErr := errors.New("connection reset")
	l, _ := New(&stubDB{err: dbErr})
	err := l.Record(context.Background(), validEntry())
	if !errors.Is(err, dbErr) {
		t.Fatalf("Record() err=%v, want %v", err, dbErr)
	}
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("New() expected error")
	}
}
