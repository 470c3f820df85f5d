package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"hls-assembler/internal/platform/logger"
	"hls-assembler/internal/platform/metrics"

	"github.com/cenkalti/backoff/v5"
)

// Fetch defaults.
const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// Doer is the part of *http.Client the fetcher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherConfig bounds the retry loop of a Fetcher. Zero values take the defaults.
type FetcherConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// AllowUnknownLength accepts responses without a Content-Length header.
	// Such responses cannot be checked for truncation.
	AllowUnknownLength bool
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(DefaultMaxBackoff, c.InitialBackoff)
	}
	return c
}

var errInvalidResponse = errors.New("invalid response")

// Fetcher downloads one resource at a time, retrying until the response is
// complete or the attempt budget is spent.
type Fetcher struct {
	client  Doer
	cfg     FetcherConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewFetcher returns a Fetcher using client. log and m may be nil.
func NewFetcher(client Doer, cfg FetcherConfig, log *slog.Logger, m *metrics.Metrics) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, cfg: cfg.withDefaults(), log: logger.OrDiscard(log), metrics: m}
}

// MaxAttempts reports the effective attempt budget.
func (f *Fetcher) MaxAttempts() int { return f.cfg.MaxAttempts }

// WithUnknownLength returns a Fetcher sharing f's client and retry budget
// that also accepts responses without Content-Length. Playlists are often
// served chunked; a declared length is still checked when present.
func (f *Fetcher) WithUnknownLength() *Fetcher {
	c := *f
	c.cfg.AllowUnknownLength = true
	return &c
}

// Fetch GETs address. An attempt is valid only if the status is 2xx and the
// number of body bytes equals the Content-Length header. Invalid attempts are
// retried with exponential backoff; after MaxAttempts the result is a
// *FetchFailedError. Cancelling ctx stops immediately with ctx's error.
func (f *Fetcher) Fetch(ctx context.Context, address string) ([]byte, error) {
	var (
		attempts   int
		lastStatus int
		lastLength int64 = -1
		lastErr    error
	)

	op := func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		if attempts >= f.cfg.MaxAttempts {
			return nil, backoff.Permanent(lastErr)
		}
		attempts++
		start := time.Now()
		data, status, length, err := f.attempt(ctx, address)
		lastStatus, lastLength, lastErr = status, length, err
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}

		retry := err != nil && attempts < f.cfg.MaxAttempts
		f.metrics.ObserveFetchAttempt(retry)
		f.log.Debug("fetch attempt",
			slog.String("address", address),
			slog.Int("attempt", attempts),
			slog.Int("status", status),
			slog.Int64("length", length),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.Bool("valid", err == nil))
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialBackoff
	b.MaxInterval = f.cfg.MaxBackoff

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(f.cfg.MaxAttempts)),
	)
	if err == nil {
		f.metrics.ObserveSegmentFetched(len(data))
		return data, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	f.log.Warn("fetch failed",
		slog.String("address", address),
		slog.Int("attempts", attempts),
		slog.Int("last_status", lastStatus),
		slog.Int64("last_length", lastLength),
		slog.String("error", err.Error()))
	return nil, &FetchFailedError{
		Address:    address,
		Attempts:   attempts,
		LastStatus: lastStatus,
		LastLength: lastLength,
		Err:        err,
	}
}

// attempt performs one GET. length is the number of body bytes received, or
// -1 if no body was read.
func (f *Fetcher) attempt(ctx context.Context, address string) (data []byte, status int, length int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, 0, -1, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	// Transparent gzip would hide Content-Length from the completeness check.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, -1, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	if status < 200 || status > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, status, -1, fmt.Errorf("%w: status %d", errInvalidResponse, status)
	}

	data, err = io.ReadAll(resp.Body)
	length = int64(len(data))
	if err != nil {
		return nil, status, length, fmt.Errorf("read body after %d bytes: %w", length, err)
	}

	declared := resp.ContentLength
	switch {
	case declared < 0 && !f.cfg.AllowUnknownLength:
		return nil, status, length, fmt.Errorf("%w: missing content-length", errInvalidResponse)
	case declared >= 0 && declared != length:
		return nil, status, length, fmt.Errorf("%w: content-length %d, received %d bytes", errInvalidResponse, declared, length)
	}
	return data, status, length, nil
}
