package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seo-audit/crawler/internal/config"
)

// ErrRetriesExhausted is returned when every attempt failed with a
// connection-level error.
var ErrRetriesExhausted = errors.New("retries exhausted")

const defaultMaxBodySize = 10 * 1024 * 1024

// Fetcher performs single GET requests. It never follows redirects; the
// Tracer iterates it to walk a chain hop by hop.
type Fetcher struct {
	client      *http.Client
	transport   *http.Transport
	settings    *config.Settings
	userAgent   string
	maxBodySize int64
	logger      *zap.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a fetcher. The user agent is picked from the rotation pool
// once per crawl and kept for all requests of that crawl.
func New(settings *config.Settings, logger *zap.Logger) *Fetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	ua := settings.UserAgentRotation[rand.Intn(len(settings.UserAgentRotation))]

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		transport:   transport,
		settings:    settings,
		userAgent:   ua,
		maxBodySize: defaultMaxBodySize,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// UserAgent returns the user agent chosen for this crawl.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Fetch performs one GET with retries and returns the response together
// with the wall time spent. Connection errors and 429/503 responses are
// retried with exponential backoff; a Retry-After header, when parseable
// as seconds, overrides the computed delay. After the retry budget the
// last 429/503 response is returned as-is, and the last connection error
// is returned wrapped.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, time.Duration, error) {
	start := time.Now()

	var lastErr error
	var lastResp *Response

	for attempt := 0; attempt < f.settings.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoffDelay(attempt - 1)
			if lastResp != nil {
				if ra := retryAfter(lastResp.Headers); ra > 0 {
					delay = ra
				}
			}
			f.logger.Debug("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if err := f.sleep(ctx, delay); err != nil {
				return nil, time.Since(start), err
			}
		}

		resp, err := f.doRequest(ctx, rawURL)
		if err != nil {
			lastErr = err
			lastResp = nil
			if !isRetryable(err) {
				return nil, time.Since(start), err
			}
			continue
		}
		resp.Attempts = attempt + 1

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			lastErr = nil
			lastResp = resp
			continue
		}

		return resp, time.Since(start), nil
	}

	// Budget exhausted: a terminal 429/503 is still a response.
	if lastResp != nil {
		return lastResp, time.Since(start), nil
	}
	return nil, time.Since(start), fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// doRequest performs exactly one GET without retries or redirects.
func (f *Fetcher) doRequest(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	f.setRequestHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, categorizeError(err)
	}
	defer resp.Body.Close()

	out := &Response{
		URL:           rawURL,
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Headers:       resp.Header,
		Cookies:       resp.Cookies(),
		ContentType:   extractContentType(resp.Header.Get("Content-Type")),
		ContentLength: resp.ContentLength,
	}

	// 3xx bodies are not needed; the tracer only wants the Location.
	if out.IsRedirect() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return out, nil
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("body read failed: %w", err)
	}
	out.Body = body
	if out.ContentLength < 0 {
		out.ContentLength = int64(len(body))
	}
	return out, nil
}

func (f *Fetcher) setRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "no-cache")
}

// readBody reads the body with gzip handling and a size cap.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode error: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return io.ReadAll(io.LimitReader(reader, f.maxBodySize))
}

// backoffDelay computes min(maxDelay, baseDelay * 2^attempt).
func (f *Fetcher) backoffDelay(attempt int) time.Duration {
	delay := f.settings.BaseDelay() * time.Duration(1<<uint(attempt))
	if max := f.settings.MaxDelay(); delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.transport.CloseIdleConnections()
}

// retryAfter parses a Retry-After header given in seconds; 0 when absent
// or unparseable.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// categorizeError wraps network errors with a stable prefix.
func categorizeError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("DNS error: %w", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("connection failed: %w", err)
	}
	return err
}

// isRetryable reports whether a connection-level error is worth another
// attempt. Context cancellation never is.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"connection failed",
		"no such host",
		"eof",
		"broken pipe",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
