package suggest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultValidateTimeout = 5 * time.Second
	bodyPrefixLimit        = 512
)

// CheckResult is what a reachability probe observed.
type CheckResult struct {
	Reachable   bool
	StatusCode  int
	ContentType string
	BodyPrefix  string
}

// LooksLikeFeed reports whether the probe saw a successful XML feed response.
func (c CheckResult) LooksLikeFeed() bool {
	if !c.Reachable {
		return false
	}
	ct := strings.ToLower(c.ContentType)
	if !strings.Contains(ct, "xml") && !strings.Contains(ct, "rss") && !strings.Contains(ct, "atom") {
		return false
	}
	return strings.HasPrefix(c.BodyPrefix, "<")
}

// IsHTML reports whether the probe saw a web page rather than a feed.
func (c CheckResult) IsHTML() bool {
	return c.Reachable && strings.Contains(strings.ToLower(c.ContentType), "html")
}

type Checker interface {
	Check(ctx context.Context, rawURL string) (CheckResult, error)
}

// Discoverer finds the feeds an HTML page links to.
type Discoverer interface {
	DiscoverFeeds(ctx context.Context, pageURL string) ([]string, error)
}

// HTTPChecker probes a feed URL with a GET and reads only the start of the body.
type HTTPChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}
	return &HTTPChecker{Client: &http.Client{}, Timeout: timeout}
}

func (h *HTTPChecker) Check(ctx context.Context, rawURL string) (CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return CheckResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "newspaper-bot/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.1")

	resp, err := h.Client.Do(req)
	if err != nil {
		return CheckResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyPrefixLimit))
	if err != nil {
		return CheckResult{}, fmt.Errorf("read body: %w", err)
	}
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	return CheckResult{
		Reachable:   resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		BodyPrefix:  strings.TrimSpace(string(body)),
	}, nil
}

// WellFormedURL accepts absolute http(s) URLs whose host has a dot, or is an
// IP literal or localhost.
func WellFormedURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	return strings.Contains(host, ".") || strings.Contains(host, ":") || host == "localhost"
}

// urlKey normalizes a URL for de-duplication.
func urlKey(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
