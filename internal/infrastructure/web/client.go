package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultMaxBytes = 5 << 20
	defaultAgent    = "GistOfItSec/1.0"
)

// Config tunes the outbound HTTP behaviour.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// Client downloads feed documents and article pages.
type Client struct {
	http      *http.Client
	userAgent string
	maxBytes  int64
}

var _ ports.Fetcher = (*Client)(nil)

// NewClient creates a reusable HTTP client. A nil httpClient gets a default
// one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:      httpClient,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
	}
}

// FetchFeed returns the raw feed document. Encoding is left to the feed
// parser, which honours the XML prolog. Any non-200 status, transport
// failure or oversized body is reported as domain.ErrFeedUnavailable.
func (c *Client) FetchFeed(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrFeedUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", domain.ErrFeedUnavailable, url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFeedUnavailable, url, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrFeedUnavailable, url, c.maxBytes)
	}
	return body, nil
}

// FetchPage returns an article page converted to UTF-8.
func (c *Client) FetchPage(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page %s: unexpected status %s", url, resp.Status)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, c.maxBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode page %s: %w", url, err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", url, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}
