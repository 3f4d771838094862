// Package suggest turns a newspaper theme into a list of feeds. It merges
// popular and curated feeds with LLM suggestions, validates new URLs and
// backfills from curated defaults.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newspaper/internal/cache"
	"github.com/deusflow/newspaper/internal/catalog"
	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
	"github.com/deusflow/newspaper/internal/model"
)

var ErrNoFeeds = errors.New("suggest: no feeds available")

const (
	// FastPathThreshold is the known-good feed count that skips the LLM.
	FastPathThreshold = 10
	// MaxFeeds caps the response; responses are backfilled up to it.
	MaxFeeds          = catalog.MinDefaults
	MaxLLMCandidates  = 20
	DefaultLLMTimeout = 10 * time.Second
	validateParallel  = 8
	// maxDiscovered bounds how many feeds found on one page are probed.
	maxDiscovered     = 3
)

type Engine struct {
	Repo    Repository
	Catalog *catalog.Catalog
	LLM     llm.Invoker
	Model   string
	Checker Checker
	// Discoverer is optional. When set, suggested web pages are replaced by
	// the first valid feed they link to.
	Discoverer Discoverer
	// Cache is optional. Entries are keyed by theme and locale.
	Cache      *cache.Cache[model.Suggestions]
	LLMTimeout time.Duration
}

func NewEngine(repo Repository, cat *catalog.Catalog, inv llm.Invoker, modelID string, checker Checker) *Engine {
	if repo == nil {
		repo = CatalogRepository{Catalog: cat}
	}
	if checker == nil {
		checker = NewHTTPChecker(DefaultValidateTimeout)
	}
	return &Engine{
		Repo:       repo,
		Catalog:    cat,
		LLM:        inv,
		Model:      modelID,
		Checker:    checker,
		LLMTimeout: DefaultLLMTimeout,
	}
}

func cacheKey(theme string, locale model.Locale) string {
	return cache.Key("suggest", theme, string(locale))
}

// SuggestFeeds returns at least MaxFeeds feeds when the curated defaults allow
// it. An error is returned only when every source came up empty.
func (e *Engine) SuggestFeeds(ctx context.Context, theme string, locale model.Locale) (model.Suggestions, error) {
	theme = strings.TrimSpace(theme)
	if e.Cache != nil {
		if s, ok := e.Cache.Get(cacheKey(theme, locale)); ok {
			metrics.Global.IncrementSuggestionHits()
			logger.Debug("Suggestion cache hit", "theme", theme, "locale", locale)
			return cloneSuggestions(s), nil
		}
	}

	known, categoryName := e.fastPath(ctx, theme, locale)

	var (
		fresh   []model.FeedSuggestion
		llmName string
	)
	if len(known) >= FastPathThreshold {
		logger.Info("Suggestion fast path", "theme", theme, "feeds", len(known))
	} else {
		resp, err := e.askLLM(ctx, theme, locale)
		if err != nil {
			metrics.Global.IncrementSuggestionFallbacks()
			logger.Warn("LLM feed suggestion failed, using known feeds", "theme", theme, "known", len(known), "err", err)
		} else {
			llmName = resp.NewspaperName
			fresh = e.validate(ctx, candidates(resp.Feeds, known))
			logger.Info("LLM feed suggestions validated", "theme", theme, "candidates", len(resp.Feeds), "valid", len(fresh))
		}
	}

	feeds := e.backfill(mergeCapped(known, fresh), locale)
	if len(feeds) == 0 {
		return model.Suggestions{}, ErrNoFeeds
	}

	out := model.Suggestions{
		Feeds:         feeds,
		NewspaperName: NewspaperName(llmName, categoryName, theme, locale),
	}
	if e.Cache != nil {
		e.Cache.Set(cacheKey(theme, locale), cloneSuggestions(out))
	}
	return out, nil
}

// RecordUsage stores the non-default feeds of a generated newspaper against
// the theme's category and drops the cached suggestions for the theme.
func (e *Engine) RecordUsage(ctx context.Context, theme string, locale model.Locale, feeds []model.FeedSuggestion) error {
	theme = strings.TrimSpace(theme)
	if e.Cache != nil {
		e.Cache.Invalidate(cacheKey(theme, locale))
	}
	cat, ok := e.matchCategory(ctx, theme)
	if !ok {
		return nil
	}
	used := lo.Filter(feeds, func(f model.FeedSuggestion, _ int) bool { return !f.IsDefault && WellFormedURL(f.URL) })
	if len(used) == 0 {
		return nil
	}
	if err := e.Repo.RecordUsage(ctx, cat.ID, locale, used); err != nil {
		return fmt.Errorf("record usage for %s: %w", cat.ID, err)
	}
	return nil
}

func (e *Engine) matchCategory(ctx context.Context, theme string) (catalog.Category, bool) {
	cats, err := e.Repo.Categories(ctx)
	if err != nil || len(cats) == 0 {
		if err != nil {
			logger.Warn("Loading categories failed, using catalog", "err", err)
		}
		if e.Catalog == nil {
			return catalog.Category{}, false
		}
		cats = e.Catalog.Categories
	}
	return catalog.BestMatch(theme, cats)
}

// fastPath merges popular and curated feeds of the best matching category,
// popular first. Lookup failures count as empty results.
func (e *Engine) fastPath(ctx context.Context, theme string, locale model.Locale) ([]model.FeedSuggestion, string) {
	cat, ok := e.matchCategory(ctx, theme)
	if !ok {
		logger.Debug("No category matches theme", "theme", theme)
		return nil, ""
	}

	var (
		popular []model.PopularFeed
		curated []catalog.Feed
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.Repo.PopularFeeds(gctx, cat.ID, locale, MaxFeeds)
		if err != nil {
			logger.Warn("Popular feeds lookup failed", "category", cat.ID, "err", err)
			return nil
		}
		popular = p
		return nil
	})
	g.Go(func() error {
		c, err := e.Repo.CategoryFeeds(gctx, cat.ID, locale)
		if err != nil {
			logger.Warn("Category feeds lookup failed", "category", cat.ID, "err", err)
			return nil
		}
		curated = c
		return nil
	})
	_ = g.Wait()

	name := cat.Name(locale)
	merged := make([]model.FeedSuggestion, 0, len(popular)+len(curated))
	for _, p := range popular {
		merged = append(merged, model.FeedSuggestion{URL: p.URL, Title: p.Title, Reasoning: popularReason(locale, p.UseCount)})
	}
	for _, c := range curated {
		merged = append(merged, model.FeedSuggestion{URL: c.URL, Title: c.Title, Reasoning: curatedReason(locale, name)})
	}
	merged = lo.Filter(merged, func(f model.FeedSuggestion, _ int) bool { return WellFormedURL(f.URL) })
	return lo.UniqBy(merged, func(f model.FeedSuggestion) string { return urlKey(f.URL) }), name
}

// candidates drops malformed URLs and anything already known, keeping the
// first MaxLLMCandidates distinct feeds.
func candidates(feeds []llmFeed, known []model.FeedSuggestion) []model.FeedSuggestion {
	seen := lo.SliceToMap(known, func(f model.FeedSuggestion) (string, bool) { return urlKey(f.URL), true })
	out := make([]model.FeedSuggestion, 0, len(feeds))
	for _, f := range feeds {
		u := strings.TrimSpace(f.URL)
		if !WellFormedURL(u) || seen[urlKey(u)] {
			continue
		}
		seen[urlKey(u)] = true
		out = append(out, model.FeedSuggestion{URL: u, Title: strings.TrimSpace(f.Title), Reasoning: strings.TrimSpace(f.Reasoning)})
		if len(out) == MaxLLMCandidates {
			break
		}
	}
	return out
}

// validate probes every candidate concurrently and keeps the ones that look
// like feeds, in candidate order.
func (e *Engine) validate(ctx context.Context, feeds []model.FeedSuggestion) []model.FeedSuggestion {
	ok := make([]bool, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateParallel)
	for i, f := range feeds {
		g.Go(func() error {
			res, err := e.Checker.Check(gctx, f.URL)
			if err != nil {
				logger.Debug("Feed validation failed", "feed", f.URL, "err", err)
				return nil
			}
			if res.LooksLikeFeed() {
				ok[i] = true
				return nil
			}
			if res.IsHTML() && e.Discoverer != nil {
				if u, found := e.discover(gctx, f.URL); found {
					feeds[i].URL = u
					ok[i] = true
					return nil
				}
			}
			logger.Debug("Feed rejected", "feed", f.URL, "status", res.StatusCode, "content_type", res.ContentType)
			return nil
		})
	}
	_ = g.Wait()

	valid := lo.Filter(feeds, func(_ model.FeedSuggestion, i int) bool { return ok[i] })
	return lo.UniqBy(valid, func(f model.FeedSuggestion) string { return urlKey(f.URL) })
}

// discover returns the first feed linked from pageURL that passes the checker.
func (e *Engine) discover(ctx context.Context, pageURL string) (string, bool) {
	found, err := e.Discoverer.DiscoverFeeds(ctx, pageURL)
	if err != nil {
		logger.Debug("Feed discovery failed", "page", pageURL, "err", err)
		return "", false
	}
	found = lo.Filter(found, func(u string, _ int) bool { return WellFormedURL(u) })
	for _, u := range lo.Slice(found, 0, maxDiscovered) {
		res, err := e.Checker.Check(ctx, u)
		if err == nil && res.LooksLikeFeed() {
			logger.Debug("Discovered feed", "page", pageURL, "feed", u)
			return u, true
		}
	}
	return "", false
}

// mergeCapped appends fresh to known, drops repeated URLs and caps the result.
func mergeCapped(known, fresh []model.FeedSuggestion) []model.FeedSuggestion {
	merged := append(append([]model.FeedSuggestion{}, known...), fresh...)
	merged = lo.UniqBy(merged, func(f model.FeedSuggestion) string { return urlKey(f.URL) })
	if len(merged) > MaxFeeds {
		merged = merged[:MaxFeeds]
	}
	return merged
}

// backfill tops feeds up to MaxFeeds from the curated defaults, skipping URLs
// already present.
func (e *Engine) backfill(feeds []model.FeedSuggestion, locale model.Locale) []model.FeedSuggestion {
	if len(feeds) >= MaxFeeds || e.Catalog == nil {
		return feeds
	}
	seen := lo.SliceToMap(feeds, func(f model.FeedSuggestion) (string, bool) { return urlKey(f.URL), true })
	added := 0
	for _, d := range e.Catalog.DefaultFeeds(locale) {
		if len(feeds) >= MaxFeeds {
			break
		}
		if seen[urlKey(d.URL)] {
			continue
		}
		seen[urlKey(d.URL)] = true
		feeds = append(feeds, d)
		added++
	}
	if added > 0 {
		logger.Info("Backfilled suggestions with default feeds", "added", added, "total", len(feeds))
	}
	return feeds
}

// NewspaperName prefers the LLM's name and otherwise builds one from the
// theme or category.
func NewspaperName(fromLLM, categoryName, theme string, locale model.Locale) string {
	if n := strings.TrimSpace(fromLLM); n != "" {
		return n
	}
	subject := theme
	if subject == "" {
		subject = categoryName
	}
	if locale == model.LocaleJA {
		return subject + "新聞"
	}
	if subject == "" {
		return "The Daily Feed"
	}
	return "The " + titleCase(subject) + " Times"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

func popularReason(locale model.Locale, uses int) string {
	if locale == model.LocaleJA {
		return fmt.Sprintf("%d件の新聞で使用された人気フィード", uses)
	}
	return fmt.Sprintf("Popular feed used by %d newspapers", uses)
}

func curatedReason(locale model.Locale, category string) string {
	if locale == model.LocaleJA {
		return fmt.Sprintf("「%s」カテゴリの厳選フィード", category)
	}
	return fmt.Sprintf("Curated %s feed", category)
}

func cloneSuggestions(s model.Suggestions) model.Suggestions {
	s.Feeds = append([]model.FeedSuggestion(nil), s.Feeds...)
	return s
}
