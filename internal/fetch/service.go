package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/sentinel-fetch/internal/catalog"
	"github.com/animus-labs/sentinel-fetch/internal/download"
	"github.com/animus-labs/sentinel-fetch/internal/identity"
	"github.com/animus-labs/sentinel-fetch/internal/ledger"
	"github.com/animus-labs/sentinel-fetch/internal/storage/objectstore"
)

// ErrIncomplete is returned in continue-on-error mode when at least one
// product failed.
var ErrIncomplete = errors.New("some products were not downloaded")

type Authenticator interface {
	Acquire(ctx context.Context, username, password string) (identity.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (identity.Credentials, error)
}

type Catalog interface {
	Query(ctx context.Context, expression, accessToken string) ([]catalog.Product, error)
	ValueURL(id string) string
}

type Downloader interface {
	Download(ctx context.Context, req download.Request) (download.Result, error)
}

type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

type Mirror interface {
	Upload(ctx context.Context, path string) (objectstore.ObjectInfo, error)
}

type Config struct {
	Username        string
	Password        string
	OutputDirectory string
	QueryExpression string
	ContinueOnError bool
}

// Deps are the collaborators of a Service. Recorder and Mirror are
// optional.
type Deps struct {
	Auth       Authenticator
	Catalog    Catalog
	Downloader Downloader
	Recorder   Recorder
	Mirror     Mirror
}

type Service struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	out    io.Writer

	newRunID func() string
	now      func() time.Time
}

// New builds a Service. Status lines are written to out.
func New(cfg Config, deps Deps, logger *slog.Logger, out io.Writer) (*Service, error) {
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("username is required")
	}
	if strings.TrimSpace(cfg.OutputDirectory) == "" {
		return nil, errors.New("output directory is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if deps.Downloader == nil {
		return nil, errors.New("downloader is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if out == nil {
		out = io.Discard
	}
	return &Service{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		out:      out,
		newRunID: uuid.NewString,
		now:      time.Now,
	}, nil
}

type Outcome struct {
	ProductID   string
	ProductName string
	Path        string
	Bytes       int64
}

type Failure struct {
	ProductID   string
	ProductName string
	Path        string
	Err         error
}

type Summary struct {
	RunID      string
	Products   int
	Downloaded []Outcome
	Failed     []Failure
}

// Run executes the workflow once. The returned Summary is populated even
// when an error is returned.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: s.newRunID()}
	logger := s.logger.With("run_id", summary.RunID)

	fmt.Fprintln(s.out, "Searching for products: ")

	creds, err := s.deps.Auth.Acquire(ctx, s.cfg.Username, s.cfg.Password)
	if err != nil {
		logger.Error("authentication failed", "error", err)
		return summary, err
	}
	logger.Debug("credentials acquired")

	products, err := s.deps.Catalog.Query(ctx, s.cfg.QueryExpression, creds.AccessToken)
	if err != nil {
		logger.Error("catalog query failed", "error", err)
		return summary, err
	}
	summary.Products = len(products)
	logger.Info("catalog query returned products", "products", len(products))

	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		fmt.Fprintf(s.out, "Downloading product %s with id: %s\n", p.Name, p.ID)
		plog := logger.With("product_id", p.ID, "product_name", p.Name)

		next, outcome, err := s.fetchProduct(ctx, plog, summary.RunID, creds, p)
		creds = next
		if err == nil {
			summary.Downloaded = append(summary.Downloaded, outcome)
			continue
		}

		summary.Failed = append(summary.Failed, Failure{
			ProductID:   p.ID,
			ProductName: p.Name,
			Path:        outcome.Path,
			Err:         err,
		})
		plog.Error("product failed", "path", outcome.Path, "error", err)

		var authErr *identity.AuthenticationError
		if !s.cfg.ContinueOnError || errors.As(err, &authErr) || ctx.Err() != nil {
			return summary, err
		}
	}

	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("%w: %d of %d failed", ErrIncomplete, len(summary.Failed), len(products))
	}
	logger.Info("run complete", "downloaded", len(summary.Downloaded))
	return summary, nil
}

// fetchProduct refreshes the credentials, downloads one product and records
// the attempt. The returned credentials replace the held ones even when the
// download fails, since the provider has already rotated the refresh token.
func (s *Service) fetchProduct(ctx context.Context, logger *slog.Logger, runID string, creds identity.Credentials, p catalog.Product) (identity.Credentials, Outcome, error) {
	started := s.now()
	outcome := Outcome{ProductID: p.ID, ProductName: p.Name}

	path, err := productPath(s.cfg.OutputDirectory, p.Name)
	if err != nil {
		err = &download.TransferError{ProductID: p.ID, Err: err}
		s.record(ctx, logger, runID, outcome, started, err)
		return creds, outcome, err
	}
	outcome.Path = path

	fresh, err := s.deps.Auth.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		s.record(ctx, logger, runID, outcome, started, err)
		return creds, outcome, err
	}
	creds = fresh

	res, err := s.deps.Downloader.Download(ctx, download.Request{
		ProductID:   p.ID,
		URL:         s.deps.Catalog.ValueURL(p.ID),
		Path:        path,
		AccessToken: creds.AccessToken,
	})
	outcome.Bytes = res.Bytes
	if err == nil {
		logger.Info("product downloaded", "path", path, "bytes", res.Bytes, "hops", res.Hops)
		err = s.mirror(ctx, logger, p.ID, path)
	}
	s.record(ctx, logger, runID, outcome, started, err)
	return creds, outcome, err
}

func (s *Service) mirror(ctx context.Context, logger *slog.Logger, productID, path string) error {
	if s.deps.Mirror == nil {
		return nil
	}
	info, err := s.deps.Mirror.Upload(ctx, path)
	if err != nil {
		return &download.TransferError{ProductID: productID, Path: path, Err: fmt.Errorf("mirror: %w", err)}
	}
	logger.Info("product mirrored", "path", path, "key", info.Key, "bytes", info.Size)
	return nil
}

// record writes the ledger entry. Ledger failures are logged only.
func (s *Service) record(ctx context.Context, logger *slog.Logger, runID string, o Outcome, started time.Time, failure error) {
	if s.deps.Recorder == nil {
		return
	}
	entry := ledger.Entry{
		RunID:       runID,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		Path:        o.Path,
		Bytes:       o.Bytes,
		Status:      ledger.StatusDownloaded,
		StartedAt:   started,
		FinishedAt:  s.now(),
	}
	if failure != nil {
		entry.Status = ledger.StatusFailed
		entry.Error = failure.Error()
	}
	if entry.Path == "" {
		entry.Path = "-"
	}
	if err := s.deps.Recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("ledger record failed", "status", string(entry.Status), "error", err)
	}
}

// productPath derives <dir>/<name>.zip. Names that would escape dir are
// rejected.
func productPath(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("product name %q is not a valid file name", name)
	}
	return filepath.Join(dir, name+".zip"), nil
}
