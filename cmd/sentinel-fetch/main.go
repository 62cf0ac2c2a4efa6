// Command sentinel-fetch searches the Copernicus Data Space catalog and
// downloads every matching product into a local directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/animus-labs/sentinel-fetch/internal/catalog"
	"github.com/animus-labs/sentinel-fetch/internal/config"
	"github.com/animus-labs/sentinel-fetch/internal/download"
	"github.com/animus-labs/sentinel-fetch/internal/fetch"
	"github.com/animus-labs/sentinel-fetch/internal/identity"
	"github.com/animus-labs/sentinel-fetch/internal/ledger"
	"github.com/animus-labs/sentinel-fetch/internal/platform/objectstore"
	"github.com/animus-labs/sentinel-fetch/internal/platform/postgres"
	"github.com/animus-labs/sentinel-fetch/internal/secret"
	storeobj "github.com/animus-labs/sentinel-fetch/internal/storage/objectstore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	username := flag.String("username", "", "account username (overrides config and env)")
	outputDir := flag.String("output-dir", "", "existing directory that receives <name>.zip files")
	query := flag.String("query", "", "raw OData query appended after Products?")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	level, levelErr := parseLevel(*logLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if levelErr != nil {
		logger.Error("invalid log level", "error", levelErr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath, config.Overrides{
		Username:        *username,
		OutputDirectory: *outputDir,
		QueryExpression: *query,
	})
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	os.Exit(run(ctx, logger, cfg))
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config) int {
	expression, err := cfg.QueryExpression()
	if err != nil {
		logger.Error("invalid catalog query", "error", err)
		return 2
	}

	// No timeouts: product archives can take arbitrarily long to stream.
	httpClient := &http.Client{}

	tokenURL := strings.TrimSpace(cfg.Identity.TokenURL)
	if tokenURL == "" {
		tokenURL, err = identity.DiscoverTokenURL(ctx, httpClient, cfg.Identity.IssuerURL)
		if err != nil {
			logger.Error("token endpoint discovery failed", "error", err)
			return 1
		}
		logger.Debug("token endpoint discovered", "token_url", tokenURL)
	}
	auth, err := identity.NewClient(tokenURL, cfg.Identity.ClientID, httpClient)
	if err != nil {
		logger.Error("invalid identity config", "error", err)
		return 2
	}
	cat, err := catalog.NewClient(cfg.Catalog.BaseURL, httpClient)
	if err != nil {
		logger.Error("invalid catalog config", "error", err)
		return 2
	}

	deps := fetch.Deps{
		Auth:    auth,
		Catalog: cat,
		Downloader: download.New(httpClient, download.Options{
			ChunkSize:    cfg.Download.ChunkSize,
			MaxRedirects: cfg.Download.MaxRedirects,
			VerifySize:   cfg.Download.VerifySize,
			Progress:     os.Stdout,
		}),
	}

	if cfg.Ledger.Enabled {
		db, err := postgres.Open(ctx, cfg.Ledger.Config)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			return 1
		}
		defer func() { _ = db.Close() }()

		l, err := ledger.New(db)
		if err != nil {
			logger.Error("ledger init failed", "error", err)
			return 1
		}
		if err := l.EnsureSchema(ctx); err != nil {
			logger.Error("ledger schema failed", "error", err)
			return 1
		}
		deps.Recorder = l
	}

	if cfg.Mirror.Enabled {
		client, err := objectstore.NewMinIOClient(cfg.Mirror.Config)
		if err != nil {
			logger.Error("invalid mirror config", "error", err)
			return 2
		}
		if err := objectstore.EnsureBucket(ctx, client, cfg.Mirror.Config); err != nil {
			logger.Error("mirror bucket unavailable", "error", err)
			return 1
		}
		store, err := storeobj.NewMinioStoreWithClient(client)
		if err != nil {
			logger.Error("mirror store init failed", "error", err)
			return 1
		}
		mirror, err := storeobj.NewMirror(store, cfg.Mirror.Bucket, cfg.Mirror.Prefix)
		if err != nil {
			logger.Error("invalid mirror config", "error", err)
			return 2
		}
		deps.Mirror = mirror
	}

	password, err := secret.NewTerminalReader(config.PasswordEnv, os.Stdin, os.Stderr).Password()
	if err != nil {
		logger.Error("password unavailable", "error", err)
		return 2
	}

	svc, err := fetch.New(fetch.Config{
		Username:        cfg.Username,
		Password:        password,
		OutputDirectory: cfg.OutputDirectory,
		QueryExpression: expression,
		ContinueOnError: cfg.Download.ContinueOnError,
	}, deps, logger, os.Stdout)
	if err != nil {
		logger.Error("workflow init failed", "error", err)
		return 2
	}

	summary, err := svc.Run(ctx)
	if err != nil {
		printFailures(os.Stderr, summary)
		logger.Error("run failed", "run_id", summary.RunID, "error", err)
		return 1
	}
	return 0
}

func printFailures(w io.Writer, s fetch.Summary) {
	if len(s.Failed) == 0 {
		return
	}
	fmt.Fprintf(w, "%d of %d products failed (%d downloaded):\n", len(s.Failed), s.Products, len(s.Downloaded))
	for _, f := range s.Failed {
		fmt.Fprintf(w, "  %s (%s): %v\n", f.ProductName, f.ProductID, f.Err)
	}
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", raw, err)
	}
	return level, nil
}
