// Package fetcher pulls raw spotter reports from the SpotterNetwork feed.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/spotter-report-loader/internal/backoff"
	"github.com/couchcryptid/spotter-report-loader/internal/config"
	"github.com/couchcryptid/spotter-report-loader/internal/domain"
)

// maxBodyBytes bounds the feed response size. The live feed is a few tens of
// kilobytes; anything near this limit is a broken response.
const maxBodyBytes = 10 << 20

// Kind classifies a fetch failure.
type Kind string

const (
	// KindTransient covers network errors and 5xx responses; retried locally.
	KindTransient Kind = "transient"
	// KindRateLimited is a 429 response; retried locally with backoff.
	KindRateLimited Kind = "rate_limited"
	// KindAuthFailure is a 401/403 response. Process-fatal: polling without
	// trusted access to the feed is incorrect.
	KindAuthFailure Kind = "auth_failure"
	// KindMalformed is an undecodable response body. Not retried: the same
	// body would come back.
	KindMalformed Kind = "malformed"
)

// Error is a classified fetch failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying within the cycle.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// Fatal reports whether the failure should stop the process.
func (e *Error) Fatal() bool { return e.Kind == KindAuthFailure }

// Fetcher polls the feed endpoint, rate-limited and with bounded in-cycle
// retries. It implements pipeline.Fetcher.
type Fetcher struct {
	url         string
	userAgent   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	policy      backoff.Policy
	maxAttempts int

	// lookback widens the cursor filter so reports whose timestamps tie with
	// or slightly trail the cursor still reach the checkpoint tracker, which
	// owns exact admission.
	lookback time.Duration

	logger *slog.Logger
}

// New creates a Fetcher for the configured feed.
func New(cfg *config.Config, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		url:       cfg.FeedURL,
		userAgent: cfg.FeedUserAgent,
		httpClient: &http.Client{
			Timeout: cfg.FeedTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(cfg.FeedRateLimit), 1),
		policy:      backoff.Policy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap, Jitter: 0.2},
		maxAttempts: cfg.RetryMaxAttempts,
		lookback:    cfg.DedupeWindowTTL,
		logger:      logger,
	}
}

// Poll fetches the feed and returns reports ordered by report time, filtered
// to those that could still be new relative to cursor. Transient and
// rate-limited failures are retried with capped exponential backoff; on
// exhaustion, or on a non-retryable failure, the error is returned and no
// progress is lost (the cursor is untouched by a failed poll).
func (f *Fetcher) Poll(ctx context.Context, cursor time.Time) ([]domain.RawReport, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		reports, err := f.fetchOnce(ctx, cursor)
		if err == nil {
			if attempt > 1 {
				f.logger.Info("feed fetch recovered", "attempt", attempt)
			}
			return reports, nil
		}

		var fe *Error
		if !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}
		lastErr = err

		if attempt == f.maxAttempts {
			break
		}
		delay := f.policy.Delay(attempt)
		f.logger.Warn("feed fetch failed, retrying",
			"attempt", attempt,
			"kind", string(fe.Kind),
			"delay", delay,
			"error", fe.Err,
		)
		if !sleepWithContext(ctx, delay) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("fetch retries exhausted after %d attempts: %w", f.maxAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, cursor time.Time) ([]domain.RawReport, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: KindTransient, Err: fmt.Errorf("read body: %w", err)}
	}
	if !utf8.Valid(body) {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("response body is not valid UTF-8")}
	}

	reports := domain.ParseFeed(string(body))
	return f.filterByCursor(reports, cursor), nil
}

// classifyStatus maps a non-200 status to the failure taxonomy.
func classifyStatus(status int) *Error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuthFailure, Err: fmt.Errorf("status %d", status)}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Err: fmt.Errorf("status %d", status)}
	default:
		// 5xx and anything else unexpected: assume the server is having a
		// moment and retry.
		return &Error{Kind: KindTransient, Err: fmt.Errorf("unexpected status %d", status)}
	}
}

// filterByCursor drops reports too old to matter. Unrecognized reports carry
// a zero time and pass through so they still reach quarantine once.
func (f *Fetcher) filterByCursor(reports []domain.RawReport, cursor time.Time) []domain.RawReport {
	if cursor.IsZero() {
		return reports
	}
	cutoff := cursor.Add(-f.lookback)

	kept := make([]domain.RawReport, 0, len(reports))
	for _, r := range reports {
		if r.ReportedAt.IsZero() || r.ReportedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
