// Package fetch performs upstream HTTP GETs with a fixed retry policy and
// persists response bodies to the staging directory.
package fetch

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

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Decoder validates and optionally transforms a response body. A decoder
// error counts as a failed attempt and is retried.
type Decoder func(body []byte) ([]byte, error)

// Options configure a Fetcher.
type Options struct {
	Timeout   time.Duration
	Attempts  int
	Delay     time.Duration
	UserAgent string
}

// Fetcher issues GET requests with a bounded number of attempts and a fixed
// delay between them.
type Fetcher struct {
	client    *http.Client
	userAgent string
	attempts  int
	delay     time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a Fetcher.
func New(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		attempts:  attempts,
		delay:     opts.Delay,
		clock:     clockwork.NewRealClock(),
		metrics:   metrics,
		logger:    logger,
	}
}

// WithClock replaces the time source used for retry delays.
func (f *Fetcher) WithClock(c clockwork.Clock) *Fetcher {
	f.clock = c
	return f
}

// Get fetches url, retrying on transport errors, non-2xx statuses, and
// decoder errors. Exhausted retries return an error wrapping
// domain.ErrFetchFailure.
func (f *Fetcher) Get(ctx context.Context, src domain.Source, url string, decode Decoder) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		body, err := f.once(ctx, src, url)
		if err == nil && decode != nil {
			body, err = decode(body)
		}
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
		if attempt == f.attempts {
			break
		}
		f.metrics.FetchRetries.WithLabelValues(string(src)).Inc()
		f.logger.Warn("fetch attempt failed, retrying",
			"url", url,
			"attempt", attempt,
			"max_attempts", f.attempts,
			"delay", f.delay,
			"error", err,
		)
		if !f.sleep(ctx) {
			return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrFetchFailure, url, f.attempts, lastErr)
}

func (f *Fetcher) once(ctx context.Context, src domain.Source, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := f.clock.Now()
	resp, err := f.client.Do(req)
	f.metrics.FetchDuration.WithLabelValues(string(src)).Observe(f.clock.Since(start).Seconds())
	if err != nil {
		f.metrics.FetchRequests.WithLabelValues(string(src), "error").Inc()
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.metrics.FetchRequests.WithLabelValues(string(src), "error").Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.metrics.FetchRequests.WithLabelValues(string(src), "error").Inc()
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	f.metrics.FetchRequests.WithLabelValues(string(src), "success").Inc()
	return body, nil
}

func (f *Fetcher) sleep(ctx context.Context) bool {
	if f.delay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-f.clock.After(f.delay):
		return true
	}
}

// ToFile fetches url into dest. If dest already exists no request is made
// and skipped is true. The body is written to a temporary sibling first so a
// failed write never leaves a partial destination file.
func (f *Fetcher) ToFile(ctx context.Context, src domain.Source, url, dest string, decode Decoder) (skipped bool, err error) {
	if Exists(dest) {
		f.metrics.FetchSkipped.WithLabelValues(string(src)).Inc()
		return true, nil
	}
	body, err := f.Get(ctx, src, url, decode)
	if err != nil {
		return false, err
	}
	if err := WriteFileAtomic(dest, body); err != nil {
		return false, err
	}
	return false, nil
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// WriteFileAtomic writes data to path via a temporary file and rename.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("rename %s: %w", tmp, err), os.Remove(tmp))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
