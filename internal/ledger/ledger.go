// Package ledger keeps a Postgres record of every product the workflow
// attempted, one row per attempt.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusFailed     Status = "failed"
)

// Entry is one attempted product download.
type Entry struct {
	RunID       string
	ProductID   string
	ProductName string
	Path        string
	Bytes       int64
	Status      Status
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (e Entry) Validate() error {
	if _, err := uuid.Parse(e.RunID); err != nil {
		return fmt.Errorf("run id must be a uuid: %w", err)
	}
	if strings.TrimSpace(e.ProductID) == "" {
		return errors.New("product id is required")
	}
	if strings.TrimSpace(e.ProductName) == "" {
		return errors.New("product name is required")
	}
	if strings.TrimSpace(e.Path) == "" {
		return errors.New("path is required")
	}
	if e.Bytes < 0 {
		return errors.New("bytes must be >= 0")
	}
	switch e.Status {
	case StatusDownloaded, StatusFailed:
	default:
		return fmt.Errorf("unsupported status: %q", e.Status)
	}
	if e.StartedAt.IsZero() {
		return errors.New("started at is required")
	}
	if !e.FinishedAt.IsZero() && e.FinishedAt.Before(e.StartedAt) {
		return errors.New("finished at must not precede started at")
	}
	return nil
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Ledger struct {
	db Execer
}

func New(db Execer) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	return &Ledger{db: db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS product_downloads (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		path TEXT NOT NULL,
		bytes BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('downloaded', 'failed')),
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS product_downloads_product_id_idx ON product_downloads (product_id)`,
	`CREATE INDEX IF NOT EXISTS product_downloads_run_id_idx ON product_downloads (run_id)`,
}

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	return nil
}

func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return err
	}

	var errText sql.NullString
	if msg := strings.TrimSpace(e.Error); msg != "" {
		errText = sql.NullString{String: msg, Valid: true}
	}

	_, err := l.db.ExecContext(
		ctx,
		`INSERT INTO product_downloads (
			run_id,
			product_id,
			product_name,
			path,
			bytes,
			status,
			error,
			started_at,
			finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.RunID,
		strings.TrimSpace(e.ProductID),
		strings.TrimSpace(e.ProductName),
		e.Path,
		e.Bytes,
		string(e.Status),
		errText,
		e.StartedAt.UTC(),
		e.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert product download: %w", err)
	}
	return nil
}
