// Package fetch provides a bounded-timeout HTTP client for listing pages.
package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/metroboards/galleryscan/internal/errors"
)

// Client fetches remote listing pages. Every request carries an explicit
// timeout; a request that was not derived from a previous successful crawl
// step must be validated by the caller before it reaches this client.
type Client struct {
	client    *http.Client
	userAgent string

	// ListingTimeout bounds full listing fetches; ProbeTimeout bounds the
	// lighter image-count probes.
	listingTimeout time.Duration
	probeTimeout   time.Duration
}

// Config holds configuration for the listing client.
type Config struct {
	ListingTimeout      time.Duration
	ProbeTimeout        time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	UserAgent           string
}

// DefaultConfig returns defaults tuned for a single remote listing host.
func DefaultConfig() Config {
	return Config{
		ListingTimeout:      15 * time.Second,
		ProbeTimeout:        10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		UserAgent:           "galleryscan/1.0",
	}
}

// NewClient creates a new listing client.
func NewClient(cfg Config) *Client {
	if cfg.ListingTimeout <= 0 {
		cfg.ListingTimeout = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New(errors.Network, req.URL.String(), "redirect", "redirect limit exceeded", nil)
				}
				return nil
			},
		},
		userAgent:      cfg.UserAgent,
		listingTimeout: cfg.ListingTimeout,
		probeTimeout:   cfg.ProbeTimeout,
	}
}

// Result contains a fetched listing page.
type Result struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	HTML        string
	Duration    time.Duration
}

// GetListing fetches a listing page with the full listing timeout.
func (c *Client) GetListing(ctx context.Context, targetURL string) (*Result, error) {
	return c.get(ctx, targetURL, c.listingTimeout)
}

// GetProbe fetches a listing page with the shorter probe timeout, for
// image-count checks where a slow folder should not stall the whole crawl.
func (c *Client) GetProbe(ctx context.Context, targetURL string) (*Result, error) {
	return c.get(ctx, targetURL, c.probeTimeout)
}

func (c *Client) get(ctx context.Context, targetURL string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := &Result{URL: targetURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return result, errors.New(errors.Parse, targetURL, "request_creation", "failed to create request", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return result, errors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")

	if httpErr := errors.CategorizeHTTPStatus(resp.StatusCode, targetURL); httpErr != nil {
		return result, httpErr
	}

	// Listing pages are small; the limit guards against a misconfigured
	// root pointing at a huge binary.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return result, errors.NewNetworkError(targetURL, "body_read", err)
	}
	result.HTML = string(body)
	result.Duration = time.Since(start)

	return result, nil
}

// CountAnchors walks HTML with the lightweight tokenizer and counts anchors
// whose href passes the given filter. Used by the image-count probe path,
// which never needs the full goquery document.
func CountAnchors(htmlContent string, match func(href string) bool) int {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return 0
	}

	count := 0
	seen := make(map[string]struct{})

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					if _, dup := seen[attr.Val]; !dup && match(attr.Val) {
						seen[attr.Val] = struct{}{}
						count++
					}
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(doc)
	return count
}

// Close closes idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
