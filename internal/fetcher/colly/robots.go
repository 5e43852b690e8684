package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/pharma-listing-crawler/internal/metrics"
)

const (
	robotsAttemptTimeout = 5 * time.Second
	maxRobotsBytes     = 512 << 10
	allowAllRobots     = "User-agent: *\nAllow: /"
)

// Reasons recorded when a robots.txt request falls back to allow-all.
const (
	robotsReasonTimeout = "timeout"
	robotsReasonTLS     = "tls"
	robotsReasonNetwork = "network"
)

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsAwareTransport retries robots.txt requests with their own short timeout.
// A host whose robots.txt never answers is treated as allow-all so that colly
// does not fail every page visit on it. Real responses, including 4xx
// and 5xx, are passed through for colly to interpret.
type robotsAwareTransport struct {
	base           http.RoundTripper
	backoff        []time.Duration
	attemptTimeout time.Duration
}

func newRobotsAwareTransport(base http.RoundTripper) *robotsAwareTransport {
	return &robotsAwareTransport{
		base:           base,
		backoff:        robotsRetryBackoff,
		attemptTimeout: robotsAttemptTimeout,
	}
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}
	return t.fetchRobots(req)
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

func (t *robotsAwareTransport) fetchRobots(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= len(t.backoff); attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(req.Context(), t.backoff[attempt-1]); err != nil {
				return nil, err
			}
		}
		resp, err := t.fetchRobotsOnce(req)
		if err == nil {
			return resp, nil
		}
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("robots.txt request canceled: %w", ctxErr)
		}
		lastErr = err
	}
	metrics.ObserveRobotsFallback(fallbackReason(lastErr))
	return allowAllResponse(req), nil
}

// fetchRobotsOnce reads the whole body before its timeout is released.
func (t *robotsAwareTransport) fetchRobotsOnce(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.attemptTimeout)
	defer cancel()

	resp, err := t.base.RoundTrip(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("robots.txt request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

func fallbackReason(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return robotsReasonNetwork
	case strings.Contains(err.Error(), "tls:"):
		return robotsReasonTLS
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return robotsReasonTimeout
	default:
		return robotsReasonNetwork
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Request:       req,
	}
}
