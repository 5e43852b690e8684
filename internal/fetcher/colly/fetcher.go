// Package collyfetcher implements a single-attempt fetcher.Transport using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"github.com/JakeFAU/pharma-listing-crawler/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	// UserAgent pins the user agent; empty picks a random browser agent per request.
	UserAgent string
	// RespectRobots makes colly consult robots.txt. A host whose robots.txt
	// cannot be fetched is treated as allow-all.
	RespectRobots bool
	Timeout       time.Duration
}

var defaultHeaders = http.Header{
	"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
	"Accept-Language": {"en-US,en;q=0.5"},
	"Cache-Control":   {"max-age=0"},
}

// Transport performs one GET per call through a cloned Colly collector.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
	robots        *robotsAwareTransport
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = fetcher.DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	t := &Transport{cfg: cfg, baseCollector: c}
	// Clones share the base collector's HTTP backend, so the robots.txt request
	// handling is installed once here.
	if cfg.RespectRobots {
		t.robots = newRobotsAwareTransport(newHTTPTransport())
		c.WithTransport(t.robots)
	} else {
		c.WithTransport(newHTTPTransport())
	}
	return t
}

// Get fetches url once and returns the response body.
func (t *Transport) Get(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := t.buildCollector()
	configureCollectorHooks(collector, url, &body, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}
	return body, nil
}

func (t *Transport) buildCollector() *colly.Collector {
	collector := t.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = !t.cfg.RespectRobots
	collector.SetRequestTimeout(t.cfg.Timeout)
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	} else {
		extensions.RandomUserAgent(collector)
	}
	return collector
}

func configureCollectorHooks(hooks collectorHooks, url string, body *[]byte, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range defaultHeaders {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusMultipleChoices {
			*fetchErr = &fetcher.StatusError{URL: url, Code: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return fmt.Errorf("%w: %s", fetcher.ErrDisallowed, url)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
