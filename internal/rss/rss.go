package rss

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/textutil"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 10
	DescriptionLimit   = 200
	userAgent          = "newspaper-bot/1.0 (+https://github.com/deusflow/newspaper)"
)

// Result is the merged outcome of one fetch over many feeds.
type Result struct {
	Articles      []model.Article   `json:"articles"`
	FeedLanguages map[string]string `json:"feedLanguages"`
}

// Fetcher downloads feeds concurrently. A failing feed never aborts the others.
type Fetcher struct {
	Client      *http.Client
	Timeout     time.Duration
	Concurrency int

	now func() time.Time
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		Client:      &http.Client{},
		Timeout:     timeout,
		Concurrency: DefaultConcurrency,
		now:         time.Now,
	}
}

type feedResult struct {
	articles []model.Article
	language string
	err      error
}

// Fetch downloads every url and returns the articles published within the last
// daysBack days. Per-feed failures are logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, daysBack int) Result {
	now := f.now()
	results := make([]feedResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	if f.Concurrency > 0 {
		g.SetLimit(f.Concurrency)
	}
	for i, url := range urls {
		g.Go(func() error {
			results[i] = f.fetchFeed(gctx, url, now)
			// Failures are recorded in results so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	out := Result{FeedLanguages: map[string]string{}}
	cutoff := now.Add(-time.Duration(daysBack) * 24 * time.Hour)
	ok := 0
	for i, r := range results {
		if r.err != nil {
			logger.Warn("Feed fetch failed", "feed", urls[i], "err", r.err)
			metrics.Global.RecordFeedFetch(false, 0)
			continue
		}
		ok++
		metrics.Global.RecordFeedFetch(true, len(r.articles))
		logger.Debug("Feed fetched", "feed", urls[i], "articles", len(r.articles))
		if r.language != "" {
			out.FeedLanguages[urls[i]] = r.language
		}
		for _, a := range r.articles {
			if a.PublicationDate.Before(cutoff) {
				continue
			}
			out.Articles = append(out.Articles, a)
		}
	}

	logger.Info("Processed RSS feeds", "ok", ok, "total", len(urls), "articles", len(out.Articles), "days_back", daysBack)
	return out
}

func (f *Fetcher) fetchFeed(ctx context.Context, url string, now time.Time) feedResult {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	// gofeed.Parser keeps per-parse state, so each goroutine gets its own.
	parser := gofeed.NewParser()
	parser.Client = f.Client
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return feedResult{err: err}
	}

	articles := make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if a, ok := toArticle(item, url, now); ok {
			articles = append(articles, a)
		}
	}
	return feedResult{articles: articles, language: normalizeLanguage(feed.Language)}
}

func toArticle(item *gofeed.Item, feedURL string, now time.Time) (model.Article, bool) {
	if item == nil {
		return model.Article{}, false
	}
	title := strings.TrimSpace(textutil.StripHTML(item.Title))
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if title == "" || link == "" {
		return model.Article{}, false
	}

	desc := item.Description
	if strings.TrimSpace(desc) == "" {
		desc = item.Content
	}

	published := now
	switch {
	case item.PublishedParsed != nil:
		published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		published = *item.UpdatedParsed
	}

	return model.Article{
		Title:           title,
		Description:     textutil.Truncate(textutil.StripHTML(desc), DescriptionLimit),
		Link:            link,
		PublicationDate: published,
		ImageURL:        imageURL(item),
		SourceFeedURL:   feedURL,
	}, true
}

// imageURL picks the first image found in enclosures, media:content,
// media:thumbnail, the item image and finally inline <img> tags.
func imageURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") || (enc.Type == "" && looksLikeImage(enc.URL)) {
			return enc.URL
		}
	}

	media := item.Extensions["media"]
	if u := mediaContentURL(media["content"]); u != "" {
		return u
	}
	for _, group := range media["group"] {
		if u := mediaContentURL(group.Children["content"]); u != "" {
			return u
		}
	}
	if u := firstAttr(media["thumbnail"], "url"); u != "" {
		return u
	}
	for _, group := range media["group"] {
		if u := firstAttr(group.Children["thumbnail"], "url"); u != "" {
			return u
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	if u := textutil.FirstImageSrc(item.Content); u != "" {
		return u
	}
	return textutil.FirstImageSrc(item.Description)
}

func mediaContentURL(contents []ext.Extension) string {
	for _, c := range contents {
		u := c.Attrs["url"]
		if u == "" {
			continue
		}
		medium, typ := c.Attrs["medium"], c.Attrs["type"]
		if medium == "image" || strings.HasPrefix(typ, "image/") || (medium == "" && typ == "" && looksLikeImage(u)) {
			return u
		}
	}
	return ""
}

func firstAttr(exts []ext.Extension, name string) string {
	for _, e := range exts {
		if v := e.Attrs[name]; v != "" {
			return v
		}
	}
	return ""
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif"}

func looksLikeImage(u string) bool {
	u = strings.ToLower(u)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	for _, e := range imageExts {
		if strings.HasSuffix(u, e) {
			return true
		}
	}
	return false
}

// normalizeLanguage reduces "en-US" style tags to the primary subtag.
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
