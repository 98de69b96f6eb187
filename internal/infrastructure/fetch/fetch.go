// Package fetch provides the HTTP text client shared by the feed
// ingestor and the metrics scraper.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/Liyracat/tool-rss-reader/internal/ports"
)

const defaultTimeout = 30 * time.Second

// Client issues GET requests with a bounded timeout and a stable
// identifying User-Agent, decoding bodies per their declared charset.
type Client struct {
	http      *http.Client
	userAgent string
}

var _ ports.TextFetcher = (*Client)(nil)

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// New builds a Client; a zero timeout falls back to 30s.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: opts.UserAgent,
	}
}

// FetchText GETs the URL and returns the body as text. The response's
// Content-Type charset drives decoding, defaulting to UTF-8; undecodable
// bytes are replaced rather than failing the read.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned %s", url, resp.Status)
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("select charset: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
