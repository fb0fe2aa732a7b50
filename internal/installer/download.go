package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/schollz/progressbar/v3"
)

const (
	// DefaultTimeout bounds a single download attempt.
	DefaultTimeout = 10 * time.Minute
	// DefaultRetries is the number of extra attempts after the first one.
	DefaultRetries = 3
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "fampp/1.0"

	maxRedirects = 10
	partSuffix   = ".part"
)

// Downloader fetches a URL into a local file. Each attempt writes to
// <dest>.part and renames it into place only after the body was fully read.
// Retries restart from byte zero.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	// initial delay between attempts, doubled each retry
	interval time.Duration
	// Progress receives a progress bar when non-nil (usually os.Stderr).
	Progress io.Writer
}

// NewDownloader returns a downloader with the default timeout and retry budget.
func NewDownloader() *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		interval:  time.Second,
	}
}

// SetRetries overrides the retry budget. Negative values are treated as zero.
func (d *Downloader) SetRetries(n int) {
	if n < 0 {
		n = 0
	}
	d.retries = n
}

// SetTimeout overrides the per-attempt timeout. Zero keeps the current value.
func (d *Downloader) SetTimeout(t time.Duration) {
	if t > 0 {
		d.client.Timeout = t
	}
}

// Download fetches url into dest. On failure no partial file is left behind.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.interval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.retries)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := d.downloadOnce(ctx, url, dest)
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("Download attempt failed, retrying", "url", url, "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("download %s after %d attempt(s): %w", url, attempt, err)
	}
	return nil
}

func (d *Downloader) downloadOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &statusError{URL: url, Code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return backoff.Permanent(fmt.Errorf("create dest dir: %w", err))
	}

	tmpPath := dest + partSuffix
	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create temp file: %w", err))
	}
	cleanup := true
	defer func() {
		_ = tmpFile.Close()
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	var w io.Writer = tmpFile
	var bar *progressbar.ProgressBar
	if d.Progress != nil {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(d.Progress),
			progressbar.OptionSetDescription(filepath.Base(dest)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		w = io.MultiWriter(tmpFile, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return backoff.Permanent(fmt.Errorf("rename temp file: %w", err))
	}
	cleanup = false
	return nil
}
