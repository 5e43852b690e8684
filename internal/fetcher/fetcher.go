// Package fetcher wraps a single-attempt transport with politeness delays,
// an optional rate cap and bounded exponential retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
	"github.com/JakeFAU/pharma-listing-crawler/internal/metrics"
)

// Defaults applied when Config leaves MaxRetries or Timeout unset. Delays
// have no default: a zero window disables the politeness pause.
const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second
)

// Transport performs exactly one GET and returns the body of a 2xx response.
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Limiter blocks until a request to url may proceed.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// ErrDisallowed reports a URL that robots.txt forbids. It is never retried.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Config controls delays and retries.
type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Timeout    time.Duration
}

// Fetcher implements medicine.Fetcher.
type Fetcher struct {
	transport Transport
	cfg       Config
	limiter   Limiter
	pauser    Pauser
	random    func() float64
	logger    *zap.Logger
	failed    atomic.Int64
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter caps the request rate.
func WithLimiter(l Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithPauser replaces the timer-based sleeper.
func WithPauser(p Pauser) Option {
	return func(f *Fetcher) { f.pauser = p }
}

// WithRandom replaces the [0,1) random source used for delays and jitter.
func WithRandom(r func() float64) Option {
	return func(f *Fetcher) { f.random = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New builds a Fetcher around transport.
func New(transport Transport, cfg Config, opts ...Option) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MinDelay < 0 {
		cfg.MinDelay = 0
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	f := &Fetcher{
		transport: transport,
		cfg:       cfg,
		pauser:    TimerPauser{},
		random:    rand.Float64,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves url, retrying transient failures up to MaxRetries attempts
// in total. The backoff sleep happens only between attempts.
func (f *Fetcher) Fetch(ctx context.Context, url string) medicine.FetchOutcome {
	var outcome medicine.FetchOutcome
	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := BackoffDuration(attempt-1, f.random())
			f.logger.Debug("backing off before retry",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			if err := f.pauser.Pause(ctx, backoff); err != nil {
				break
			}
		}

		outcome.AttemptsUsed = attempt + 1
		body, err := f.attempt(ctx, url)
		if err == nil {
			outcome.Success = true
			outcome.Content = body
			return outcome
		}
		if ctx.Err() != nil {
			break
		}
		f.failed.Add(1)
		f.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", f.cfg.MaxRetries),
			zap.Error(err),
		)
		if !ShouldRetry(err) {
			break
		}
	}
	f.logger.Error("fetch gave up", zap.String("url", url), zap.Int("attempts", outcome.AttemptsUsed))
	return outcome
}

// FailedAttempts returns the number of failed attempts across all fetches.
func (f *Fetcher) FailedAttempts() int64 {
	return f.failed.Load()
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	if err := f.pauser.Pause(ctx, f.politenessDelay()); err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	body, err := f.transport.Get(attemptCtx, url)
	if err != nil {
		metrics.ObserveFetchAttempt(url, metrics.ResultFailure, 0)
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	metrics.ObserveFetchAttempt(url, metrics.ResultSuccess, len(body))
	return body, nil
}

func (f *Fetcher) politenessDelay() time.Duration {
	span := f.cfg.MaxDelay - f.cfg.MinDelay
	return f.cfg.MinDelay + time.Duration(f.random()*float64(span))
}
