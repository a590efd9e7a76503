package lifecycle

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// DefaultBeaconTimeout bounds a single beacon request.
const DefaultBeaconTimeout = 2 * time.Second

// Beacon queues a request that must be attempted even while the page is
// being torn down. Send never blocks and reports whether the request was
// queued.
type Beacon interface {
	Send(url, contentType string, body []byte) bool
}

// HTTPBeacon posts beacons on a background goroutine with a strict timeout.
type HTTPBeacon struct {
	client  *http.Client
	timeout time.Duration
	base    *url.URL
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// BeaconOption configures an HTTPBeacon.
type BeaconOption func(*HTTPBeacon)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) BeaconOption {
	return func(b *HTTPBeacon) {
		if c != nil {
			b.client = c
		}
	}
}

// WithBeaconTimeout overrides DefaultBeaconTimeout.
func WithBeaconTimeout(d time.Duration) BeaconOption {
	return func(b *HTTPBeacon) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBaseURL resolves relative beacon URLs, such as "/api/sessions/logout",
// against base.
func WithBaseURL(base string) BeaconOption {
	return func(b *HTTPBeacon) {
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			b.base = u
		}
	}
}

// WithBeaconLogger sets the logger.
func WithBeaconLogger(l *slog.Logger) BeaconOption {
	return func(b *HTTPBeacon) { b.logger = logger.OrDiscard(l) }
}

// NewHTTPBeacon creates a beacon using http.DefaultClient.
func NewHTTPBeacon(opts ...BeaconOption) *HTTPBeacon {
	b := &HTTPBeacon{
		client:  http.DefaultClient,
		timeout: DefaultBeaconTimeout,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send implements Beacon.
func (b *HTTPBeacon) Send(rawURL, contentType string, body []byte) bool {
	u, err := url.Parse(rawURL)
	if err == nil && b.base != nil {
		u = b.base.ResolveReference(u)
	}
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		b.logger.Warn("invalid beacon url",
			logger.Component("lifecycle"),
			logger.Error(err),
		)
		return false
	}

	payload := bytes.Clone(body)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := b.client.Do(req)
		if err != nil {
			b.logger.Warn("beacon delivery failed",
				logger.Component("lifecycle"),
				logger.Error(err),
			)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return true
}

// Flush waits for in-flight beacons or until ctx is done.
func (b *HTTPBeacon) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
