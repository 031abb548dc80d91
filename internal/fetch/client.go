package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
)

// maxPage bounds the bytes read from one product page.
const maxPage = 8 << 20

// Client downloads product pages over plain HTTP. Pages that only render
// with JavaScript come back without their ingredient section; the report
// log records those like any other extraction miss.
type Client struct {
	UserAgent string
	Delay     time.Duration // minimum gap between requests

	HTTPClient *http.Client

	mu   sync.Mutex
	last time.Time
}

// Name identifies the source in report lines.
func (c *Client) Name() string { return "web" }

// Fetch returns the raw HTML at url.
func (c *Client) Fetch(ctx context.Context, url, code string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrFetch, code, err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept-Language", "th-TH,th;q=0.9,en;q=0.8")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrFetch, code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %s", internalerr.ErrFetch, code, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPage))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrFetch, code, err)
	}
	return body, nil
}

func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Delay > 0 && !c.last.IsZero() {
		if d := c.Delay - time.Since(c.last); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	c.last = time.Now()
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
