// Save as: internal/feed/client.go
package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Parse feeds and pages with a reasonable size limit to avoid huge downloads.
const (
	maxFeedBytes = 5 << 20
	maxPageBytes = 10 << 20
)

// Client fetches feed documents and raw article pages. It keeps no
// caller state; conditional-request validators are passed in per call.
type Client struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
}

func NewClient(userAgent string, timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
	}
}

// FetchFeed performs a conditional GET of an RSS/Atom document. When
// prior validators exist they are sent as If-None-Match /
// If-Modified-Since; a 304 yields a NotModified result that carries the
// priors forward unchanged. Any status >= 400 other than 304 is an
// error for this feed only.
func (c *Client) FetchFeed(ctx context.Context, url, etag, lastModified string) (*FeedResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FeedResult{
			ETag:         etag,
			LastModified: lastModified,
			NotModified:  true,
		}, nil
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	parsed, err := c.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("error parsing feed: empty document")
	}

	// Propagate new validator headers if sent; else keep the priors
	newETag := resp.Header.Get("ETag")
	if newETag == "" {
		newETag = etag
	}
	newLastModified := resp.Header.Get("Last-Modified")
	if newLastModified == "" {
		newLastModified = lastModified
	}

	return &FeedResult{
		Parsed:       parsed,
		ETag:         newETag,
		LastModified: newLastModified,
	}, nil
}

// FetchPage performs a plain GET of an article page. Error statuses do
// not fail the call: the status code is returned and the caller picks
// which ones to treat as a soft denial.
func (c *Client) FetchPage(ctx context.Context, url string) (*PageResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching page: %w", err)
	}
	defer resp.Body.Close()

	result := &PageResult{
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	if resp.StatusCode >= 400 {
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading page body: %w", err)
	}
	result.Body = string(body)
	return result, nil
}

// SoftDenial reports whether a page status means "this source does not
// want automated readers": expected, skip the entry, not a failure.
func SoftDenial(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusPaymentRequired,
		http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}
