// Package download resolves a product's binary asset through the catalog's
// redirect chain and streams it to a local file.
//
// The first request goes to the $value endpoint without credentials and with
// redirects disabled. Every 301/302/303/307 is followed by hand with the
// bearer token attached, up to MaxRedirects hops. The first non-redirect
// response is the payload. There are no timeouts, retries or resumes.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/animus-labs/sentinel-fetch/internal/progress"
)

const (
	DefaultChunkSize    = 1024
	DefaultMaxRedirects = 10

	maxErrorBody = 4 << 10
)

type Options struct {
	ChunkSize    int
	MaxRedirects int
	// VerifySize fails the transfer when the bytes written differ from a
	// non-zero content-length.
	VerifySize bool
	// Progress receives the progress display; nil discards it.
	Progress io.Writer
}

type Request struct {
	ProductID   string
	URL         string
	Path        string
	AccessToken string
}

type Result struct {
	Path     string
	Bytes    int64
	Expected int64
	Hops     int
}

type Downloader struct {
	httpClient *http.Client
	opts       Options
}

func New(httpClient *http.Client, opts Options) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	hc := *httpClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	return &Downloader{httpClient: &hc, opts: opts}
}

// Download writes the asset behind req.URL to req.Path, truncating any
// existing file.
func (d *Downloader) Download(ctx context.Context, req Request) (Result, error) {
	result := Result{Path: req.Path}
	fail := func(status int, err error) (Result, error) {
		return result, &TransferError{ProductID: req.ProductID, Path: req.Path, StatusCode: status, Err: err}
	}

	resp, hops, err := d.resolve(ctx, req)
	result.Hops = hops
	if err != nil {
		return fail(0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fail(resp.StatusCode, fmt.Errorf("asset request failed: %s", strings.TrimSpace(string(snippet))))
	}

	expected := contentLength(resp.Header)
	result.Expected = expected

	f, err := os.OpenFile(req.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fail(0, err)
	}

	bar := progress.New(d.opts.Progress, filepath.Base(req.Path), expected)
	written, copyErr := copyChunks(f, resp.Body, bar, d.opts.ChunkSize)
	bar.Finish()
	closeErr := f.Close()

	result.Bytes = written
	if copyErr != nil {
		return fail(0, copyErr)
	}
	if closeErr != nil {
		return fail(0, fmt.Errorf("close: %w", closeErr))
	}
	if d.opts.VerifySize && expected > 0 && written != expected {
		return fail(0, &SizeMismatchError{Expected: expected, Written: written})
	}
	return result, nil
}

func (d *Downloader) resolve(ctx context.Context, req Request) (*http.Response, int, error) {
	resp, err := d.get(ctx, req.URL, "")
	if err != nil {
		return nil, 0, err
	}

	hops := 0
	for isRedirect(resp.StatusCode) {
		loc, err := resp.Location()
		discard(resp)
		if err != nil {
			return nil, hops, fmt.Errorf("redirect %d without usable location: %w", resp.StatusCode, err)
		}
		if hops >= d.opts.MaxRedirects {
			return nil, hops, &TooManyRedirectsError{Limit: d.opts.MaxRedirects, LastURL: loc.String()}
		}
		hops++
		resp, err = d.get(ctx, loc.String(), req.AccessToken)
		if err != nil {
			return nil, hops, err
		}
	}
	return resp, hops, nil
}

func (d *Downloader) get(ctx context.Context, url, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return d.httpClient.Do(req)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect:
		return true
	}
	return false
}

func contentLength(h http.Header) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(h.Get("Content-Length")), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func copyChunks(dst io.Writer, src io.Reader, bar *progress.Bar, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			bar.Add(w)
			if werr != nil {
				return written, fmt.Errorf("write: %w", werr)
			}
			if w != n {
				return written, fmt.Errorf("write: %w", io.ErrShortWrite)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read: %w", rerr)
		}
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
