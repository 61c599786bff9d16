package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// UserAgent for requests
	UserAgent = "volleysync/1.0 (+results sync)"

	// MinRequestInterval between two requests of the same client
	MinRequestInterval = 2 * time.Second

	maxBodyBytes = 10 << 20
)

// HTTPClient fetches pages over plain HTTP.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(c *HTTPClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMinInterval spaces requests at least d apart. Zero disables limiting.
func WithMinInterval(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.client = hc }
}

// NewHTTPClient creates a rate-limited HTTP fetcher.
func NewHTTPClient(opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: UserAgent,
		limiter:   rate.NewLimiter(rate.Every(MinRequestInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves req.URL and decodes the body using req.Encoding.
func (c *HTTPClient) Fetch(ctx context.Context, req Request) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	body, err := Decode(raw, req.Encoding)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode, Err: err}
	}

	return &Page{URL: req.URL, Status: resp.StatusCode, Body: body}, nil
}
