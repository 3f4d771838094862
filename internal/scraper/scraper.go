// Package scraper reads HTML pages to find the feeds they advertise.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/deusflow/newspaper/internal/logger"
)

const (
	DefaultTimeout = 5 * time.Second
	// maxPageBytes bounds how much of a page is parsed; feed links live in <head>.
	maxPageBytes = 512 << 10
)

var feedTypes = []string{"application/rss+xml", "application/atom+xml", "application/feed+xml", "application/xml", "text/xml"}

// Scraper discovers feeds linked from web pages.
type Scraper struct {
	Client  *http.Client
	Timeout time.Duration
}

func New(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scraper{Client: &http.Client{}, Timeout: timeout}
}

// DiscoverFeeds returns the absolute URLs of the feeds pageURL advertises
// through <link rel="alternate"> tags, in document order.
func (s *Scraper) DiscoverFeeds(ctx context.Context, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	doc, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var feeds []string
	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))
		if !lo.Contains(feedTypes, typ) {
			return
		}
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		feeds = append(feeds, base.ResolveReference(ref).String())
	})

	feeds = lo.Uniq(feeds)
	logger.Debug("Feed discovery", "page", pageURL, "found", len(feeds))
	return feeds, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "newspaper-bot/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	return doc, nil
}
