// Package config assembles the run configuration from built-in defaults,
// an optional YAML file, SENTINEL_FETCH_* environment variables and
// command-line overrides, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/sentinel-fetch/internal/catalog"
	"github.com/animus-labs/sentinel-fetch/internal/download"
	"github.com/animus-labs/sentinel-fetch/internal/identity"
	"github.com/animus-labs/sentinel-fetch/internal/platform/env"
	"github.com/animus-labs/sentinel-fetch/internal/platform/objectstore"
	"github.com/animus-labs/sentinel-fetch/internal/platform/postgres"
)

const (
	EnvPrefix   = env.Prefix("SENTINEL_FETCH_")
	PasswordEnv = "SENTINEL_FETCH_PASSWORD"

	DefaultOutputDirectory = "./data"
)

type Config struct {
	Username        string         `yaml:"username"`
	OutputDirectory string         `yaml:"output_directory"`
	Identity        IdentityConfig `yaml:"identity"`
	Catalog         CatalogConfig  `yaml:"catalog"`
	Download        DownloadConfig `yaml:"download"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Mirror          MirrorConfig   `yaml:"mirror"`
}

type IdentityConfig struct {
	// TokenURL is used as-is. When it is empty IssuerURL must be set and
	// the token endpoint is discovered from the issuer.
	TokenURL  string `yaml:"token_url"`
	IssuerURL string `yaml:"issuer_url"`
	ClientID  string `yaml:"client_id"`
}

type CatalogConfig struct {
	BaseURL string `yaml:"base_url"`
	// QueryExpression is the raw string appended after "Products?". It
	// takes precedence over Search.
	QueryExpression string        `yaml:"query_expression"`
	Search          *SearchConfig `yaml:"search"`
}

// SearchConfig holds dates as strings so that both plain dates and full
// RFC 3339 timestamps are accepted.
type SearchConfig struct {
	Collection   string `yaml:"collection"`
	Instrument   string `yaml:"instrument"`
	NameContains string `yaml:"name_contains"`
	Area         string `yaml:"area"`
	OnlineOnly   bool   `yaml:"online_only"`
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
	Top          int    `yaml:"top"`
	Skip         int    `yaml:"skip"`
}

type DownloadConfig struct {
	ChunkSize       int  `yaml:"chunk_size"`
	MaxRedirects    int  `yaml:"max_redirects"`
	VerifySize      bool `yaml:"verify_size"`
	ContinueOnError bool `yaml:"continue_on_error"`
}

type LedgerConfig struct {
	Enabled         bool `yaml:"enabled"`
	postgres.Config `yaml:",inline"`
}

type MirrorConfig struct {
	Enabled            bool `yaml:"enabled"`
	objectstore.Config `yaml:",inline"`
}

// Overrides carries command-line values. Empty fields leave the loaded
// configuration untouched.
type Overrides struct {
	Username        string
	OutputDirectory string
	QueryExpression string
}

func Default() Config {
	return Config{
		OutputDirectory: DefaultOutputDirectory,
		Identity: IdentityConfig{
			TokenURL: identity.DefaultTokenURL,
			ClientID: identity.DefaultClientID,
		},
		Catalog: CatalogConfig{
			BaseURL: catalog.DefaultBaseURL,
		},
		Download: DownloadConfig{
			ChunkSize:    download.DefaultChunkSize,
			MaxRedirects: download.DefaultMaxRedirects,
		},
		Ledger: LedgerConfig{Config: postgres.DefaultConfig()},
		Mirror: MirrorConfig{Config: objectstore.DefaultConfig()},
	}
}

// Load builds and validates the configuration. path may be empty.
func Load(path string, o Overrides) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(EnvPrefix); err != nil {
		return Config{}, err
	}
	cfg.apply(o)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Config) applyEnv(p env.Prefix) error {
	c.Username = p.String("USERNAME", c.Username)
	c.OutputDirectory = p.String("OUTPUT_DIRECTORY", c.OutputDirectory)
	c.Identity.TokenURL = p.String("TOKEN_URL", c.Identity.TokenURL)
	c.Identity.IssuerURL = p.String("ISSUER_URL", c.Identity.IssuerURL)
	c.Identity.ClientID = p.String("CLIENT_ID", c.Identity.ClientID)
	c.Catalog.BaseURL = p.String("CATALOG_URL", c.Catalog.BaseURL)
	c.Catalog.QueryExpression = p.String("QUERY", c.Catalog.QueryExpression)

	var err error
	if c.Download.ChunkSize, err = p.Int("CHUNK_SIZE", c.Download.ChunkSize); err != nil {
		return err
	}
	if c.Download.MaxRedirects, err = p.Int("MAX_REDIRECTS", c.Download.MaxRedirects); err != nil {
		return err
	}
	if c.Download.VerifySize, err = p.Bool("VERIFY_SIZE", c.Download.VerifySize); err != nil {
		return err
	}
	if c.Download.ContinueOnError, err = p.Bool("CONTINUE_ON_ERROR", c.Download.ContinueOnError); err != nil {
		return err
	}

	if c.Ledger.Enabled, err = p.Bool("LEDGER_ENABLED", c.Ledger.Enabled); err != nil {
		return err
	}
	c.Ledger.URL = p.String("DATABASE_URL", c.Ledger.URL)
	if c.Ledger.PingTimeout, err = p.Duration("DATABASE_PING_TIMEOUT", c.Ledger.PingTimeout); err != nil {
		return err
	}

	if c.Mirror.Enabled, err = p.Bool("MIRROR_ENABLED", c.Mirror.Enabled); err != nil {
		return err
	}
	c.Mirror.Endpoint = p.String("MIRROR_ENDPOINT", c.Mirror.Endpoint)
	c.Mirror.AccessKey = p.String("MIRROR_ACCESS_KEY", c.Mirror.AccessKey)
	c.Mirror.SecretKey = p.String("MIRROR_SECRET_KEY", c.Mirror.SecretKey)
	c.Mirror.Region = p.String("MIRROR_REGION", c.Mirror.Region)
	c.Mirror.Bucket = p.String("MIRROR_BUCKET", c.Mirror.Bucket)
	c.Mirror.Prefix = p.String("MIRROR_PREFIX", c.Mirror.Prefix)
	if c.Mirror.UseSSL, err = p.Bool("MIRROR_USE_SSL", c.Mirror.UseSSL); err != nil {
		return err
	}
	return nil
}

func (c *Config) apply(o Overrides) {
	if v := strings.TrimSpace(o.Username); v != "" {
		c.Username = v
	}
	if v := strings.TrimSpace(o.OutputDirectory); v != "" {
		c.OutputDirectory = v
	}
	if v := strings.TrimSpace(o.QueryExpression); v != "" {
		c.Catalog.QueryExpression = v
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return errors.New("username is required")
	}
	if strings.TrimSpace(c.OutputDirectory) == "" {
		return errors.New("output_directory is required")
	}
	info, err := os.Stat(c.OutputDirectory)
	if err != nil {
		return fmt.Errorf("output_directory %q: %w", c.OutputDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output_directory %q is not a directory", c.OutputDirectory)
	}

	if strings.TrimSpace(c.Identity.TokenURL) == "" && strings.TrimSpace(c.Identity.IssuerURL) == "" {
		return errors.New("identity token_url or issuer_url is required")
	}
	if v := strings.TrimSpace(c.Identity.TokenURL); v != "" {
		if err := validateHTTPURL("identity token_url", v); err != nil {
			return err
		}
	}
	if v := strings.TrimSpace(c.Identity.IssuerURL); v != "" {
		if err := validateHTTPURL("identity issuer_url", v); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Identity.ClientID) == "" {
		return errors.New("identity client_id is required")
	}

	if err := validateHTTPURL("catalog base_url", strings.TrimSpace(c.Catalog.BaseURL)); err != nil {
		return err
	}
	if _, err := c.QueryExpression(); err != nil {
		return err
	}

	if c.Download.ChunkSize < 1 {
		return fmt.Errorf("download chunk_size must be >= 1 (got %d)", c.Download.ChunkSize)
	}
	if c.Download.MaxRedirects < 1 {
		return fmt.Errorf("download max_redirects must be >= 1 (got %d)", c.Download.MaxRedirects)
	}

	if c.Ledger.Enabled {
		if err := c.Ledger.Config.Validate(); err != nil {
			return err
		}
	}
	if c.Mirror.Enabled {
		if err := c.Mirror.Config.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// QueryExpression returns the raw catalog query, or the rendered search
// when no raw query is configured.
func (c Config) QueryExpression() (string, error) {
	if v := strings.TrimSpace(c.Catalog.QueryExpression); v != "" {
		return v, nil
	}
	if c.Catalog.Search == nil {
		return "", errors.New("catalog query_expression or search is required")
	}
	search, err := c.Catalog.Search.toSearch()
	if err != nil {
		return "", err
	}
	expr, err := search.Expression()
	if err != nil {
		return "", fmt.Errorf("catalog search: %w", err)
	}
	return expr, nil
}

func (s SearchConfig) toSearch() (catalog.Search, error) {
	start, err := parseTime("catalog search start", s.Start)
	if err != nil {
		return catalog.Search{}, err
	}
	end, err := parseTime("catalog search end", s.End)
	if err != nil {
		return catalog.Search{}, err
	}
	return catalog.Search{
		Collection:   s.Collection,
		Instrument:   s.Instrument,
		NameContains: s.NameContains,
		Area:         s.Area,
		OnlineOnly:   s.OnlineOnly,
		Start:        start,
		End:          end,
		Top:          s.Top,
		Skip:         s.Skip,
	}, nil
}

func parseTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date or RFC 3339 timestamp (got %q)", field, raw)
	}
	return t.UTC(), nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL (got %q)", field, raw)
	}
	return nil
}
