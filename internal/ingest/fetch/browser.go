package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// BrowserClient renders pages in headless Chrome before returning their
// HTML. Used for sources that build their tables with JavaScript.
type BrowserClient struct {
	limiter    *rate.Limiter
	settle     time.Duration
	timeout    time.Duration
	waitSelect string

	// Chromedp context for headless browser
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewBrowserClient starts a headless Chrome allocator.
func NewBrowserClient(userAgent string, minInterval time.Duration) *BrowserClient {
	if userAgent == "" {
		userAgent = UserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	return &BrowserClient{
		limiter:    rate.NewLimiter(limit, 1),
		settle:     time.Second,
		timeout:    30 * time.Second,
		waitSelect: "table",
		allocCtx:   allocCtx,
		cancel:     cancel,
	}
}

// Close releases resources
func (c *BrowserClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Fetch navigates to req.URL, waits for a table to render and returns the
// document HTML. The browser decodes the charset itself.
func (c *BrowserClient) Fetch(ctx context.Context, req Request) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	browserCtx, cancelBrowser := chromedp.NewContext(c.allocCtx)
	defer cancelBrowser()

	// stop the tab when the caller's deadline passes
	go func() {
		<-ctx.Done()
		cancelBrowser()
	}()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitVisible(c.waitSelect, chromedp.ByQuery),
		chromedp.Sleep(c.settle),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("chromedp error: %w", err)}
	}

	if htmlContent == "" {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("empty HTML content returned")}
	}

	return &Page{URL: req.URL, Status: http.StatusOK, Body: []byte(htmlContent)}, nil
}
