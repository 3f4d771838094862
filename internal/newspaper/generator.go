package newspaper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/news"
	"github.com/deusflow/newspaper/internal/rss"
	"github.com/deusflow/newspaper/internal/storage"
	"github.com/deusflow/newspaper/internal/suggest"
	"github.com/deusflow/newspaper/internal/translate"
)

var ErrInvalidRequest = errors.New("invalid newspaper request")

type Suggester interface {
	SuggestFeeds(ctx context.Context, theme string, locale model.Locale) (model.Suggestions, error)
	RecordUsage(ctx context.Context, theme string, locale model.Locale, feeds []model.FeedSuggestion) error
}

type Fetcher interface {
	FetchForNewspaper(ctx context.Context, urls []string) rss.Result
}

type Store interface {
	SaveNewspaper(ctx context.Context, rec storage.NewspaperRecord) error
	Newspaper(ctx context.Context, id string) (storage.NewspaperRecord, error)
	RecentNewspapers(ctx context.Context, limit int) ([]storage.NewspaperRecord, error)
}

// Publisher announces a generated newspaper somewhere outside the API.
type Publisher interface {
	Publish(ctx context.Context, paper *Newspaper) error
}

type Request struct {
	Theme    string       `json:"theme"`
	Locale   model.Locale `json:"locale"`
	FeedURLs []string     `json:"feedUrls,omitempty"`
}

// Generator runs the whole pipeline for one newspaper. Store, Translator and
// Publisher are optional.
type Generator struct {
	Suggester  Suggester
	Fetcher    Fetcher
	Ranker     *news.Ranker
	Writer     *Writer
	Store      Store
	Translator *translate.Translator
	Publisher  Publisher

	now func() time.Time
}

func NewGenerator(s Suggester, f Fetcher, r *news.Ranker, w *Writer, store Store) *Generator {
	return &Generator{Suggester: s, Fetcher: f, Ranker: r, Writer: w, Store: store, now: time.Now}
}

// Generate builds, stores and returns a newspaper. Only an empty theme or a
// total lack of feeds is an error; every other failure degrades.
func (g *Generator) Generate(ctx context.Context, req Request) (*Newspaper, error) {
	start := time.Now()
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		return nil, fmt.Errorf("%w: theme is required", ErrInvalidRequest)
	}
	locale := req.Locale
	if locale == "" {
		locale = model.LocaleEN
	}

	feeds, name, err := g.feeds(ctx, theme, locale, req.FeedURLs)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}
	urls := lo.Map(feeds, func(f model.FeedSuggestion, _ int) string { return f.URL })
	defaultURLs := lo.FilterMap(feeds, func(f model.FeedSuggestion, _ int) (string, bool) { return f.URL, f.IsDefault })

	fetched := g.Fetcher.FetchForNewspaper(ctx, urls)
	filtered := g.Ranker.FilterByTheme(ctx, fetched.Articles, theme, locale)
	scored := g.Ranker.CalculateImportance(ctx, filtered, theme, locale, defaultURLs)
	news.SortByImportance(scored)
	selected := g.Ranker.SelectForNewspaper(scored)
	if g.Translator != nil {
		selected = g.Translator.TranslateHeadlines(ctx, selected, fetched.FeedLanguages, locale)
	}

	paper := &Newspaper{
		ID:            uuid.NewString(),
		Name:          name,
		Theme:         theme,
		Locale:        locale,
		Feeds:         feeds,
		Articles:      selected,
		FeedLanguages: fetched.FeedLanguages,
		CreatedAt:     g.now().UTC(),
	}

	var eg errgroup.Group
	eg.Go(func() error {
		paper.Summary = g.Writer.Summary(ctx, theme, locale, selected)
		return nil
	})
	eg.Go(func() error {
		paper.Editorial = g.Writer.Editorial(ctx, theme, locale, selected)
		return nil
	})
	_ = eg.Wait()

	if err := g.save(ctx, paper); err != nil {
		logger.Error("Failed to store newspaper", "id", paper.ID, "err", err)
		metrics.Global.SetError(err.Error())
	} else {
		metrics.Global.SetLastRun()
	}
	if err := g.Suggester.RecordUsage(ctx, theme, locale, feeds); err != nil {
		logger.Warn("Failed to record feed usage", "theme", theme, "err", err)
	}
	if g.Publisher != nil && len(selected) > 0 {
		if err := g.Publisher.Publish(ctx, paper); err != nil {
			logger.Warn("Failed to publish newspaper", "id", paper.ID, "err", err)
		}
	}

	elapsed := time.Since(start)
	metrics.Global.RecordProcessingTime(elapsed)
	logger.Info("Newspaper generated",
		"id", paper.ID, "theme", theme, "locale", locale,
		"feeds", len(feeds), "fetched", len(fetched.Articles), "filtered", len(filtered), "selected", len(selected),
		"duration", elapsed)
	return paper, nil
}

// feeds resolves the feed list: the caller's URLs when given, suggestions otherwise.
func (g *Generator) feeds(ctx context.Context, theme string, locale model.Locale, given []string) ([]model.FeedSuggestion, string, error) {
	given = lo.Uniq(lo.Filter(lo.Map(given, func(u string, _ int) string { return strings.TrimSpace(u) }),
		func(u string, _ int) bool { return suggest.WellFormedURL(u) }))
	if len(given) > 0 {
		feeds := lo.Map(given, func(u string, _ int) model.FeedSuggestion { return model.FeedSuggestion{URL: u} })
		return feeds, suggest.NewspaperName("", "", theme, locale), nil
	}

	s, err := g.Suggester.SuggestFeeds(ctx, theme, locale)
	if err != nil {
		return nil, "", fmt.Errorf("suggest feeds: %w", err)
	}
	return s.Feeds, s.NewspaperName, nil
}

func (g *Generator) save(ctx context.Context, paper *Newspaper) error {
	if g.Store == nil {
		return nil
	}
	payload, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("encode newspaper: %w", err)
	}
	return g.Store.SaveNewspaper(ctx, storage.NewspaperRecord{
		ID:        paper.ID,
		Name:      paper.Name,
		Theme:     paper.Theme,
		Locale:    string(paper.Locale),
		Payload:   string(payload),
		CreatedAt: paper.CreatedAt,
	})
}

// Get loads a stored newspaper. It returns storage.ErrNotFound when unknown.
func (g *Generator) Get(ctx context.Context, id string) (*Newspaper, error) {
	if g.Store == nil {
		return nil, storage.ErrNotFound
	}
	rec, err := g.Store.Newspaper(ctx, id)
	if err != nil {
		return nil, err
	}
	var paper Newspaper
	if err := json.Unmarshal([]byte(rec.Payload), &paper); err != nil {
		return nil, fmt.Errorf("decode newspaper %s: %w", id, err)
	}
	return &paper, nil
}

func (g *Generator) Recent(ctx context.Context, limit int) ([]Listing, error) {
	if g.Store == nil {
		return []Listing{}, nil
	}
	recs, err := g.Store.RecentNewspapers(ctx, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(recs, func(r storage.NewspaperRecord, _ int) Listing {
		return Listing{ID: r.ID, Name: r.Name, Theme: r.Theme, Locale: model.Locale(r.Locale), CreatedAt: r.CreatedAt}
	}), nil
}
