package newspaper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/news"
	"github.com/deusflow/newspaper/internal/retry"
	"github.com/deusflow/newspaper/internal/rss"
	"github.com/deusflow/newspaper/internal/storage"
	"github.com/deusflow/newspaper/internal/translate"
)

type fakeSuggester struct {
	mu       sync.Mutex
	result   model.Suggestions
	err      error
	calls    int
	recorded []model.FeedSuggestion
}

func (f *fakeSuggester) SuggestFeeds(context.Context, string, model.Locale) (model.Suggestions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeSuggester) RecordUsage(_ context.Context, _ string, _ model.Locale, feeds []model.FeedSuggestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = feeds
	return nil
}

type fakeFetcher struct {
	articles []model.Article
	urls     []string
}

func (f *fakeFetcher) FetchForNewspaper(_ context.Context, urls []string) rss.Result {
	f.urls = urls
	return rss.Result{Articles: f.articles, FeedLanguages: map[string]string{"https://a.example.com/rss": "en"}}
}

func sampleArticles(n int) []model.Article {
	now := time.Now()
	out := make([]model.Article, n)
	for i := range out {
		out[i] = model.Article{
			Title:           fmt.Sprintf("Story %d", i),
			Description:     "technology update",
			Link:            fmt.Sprintf("https://a.example.com/%d", i),
			PublicationDate: now.Add(-time.Duration(i) * time.Hour),
			SourceFeedURL:   "https://a.example.com/rss",
		}
		if i%4 == 0 {
			out[i].ImageURL = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
		}
	}
	return out
}

func newTestGenerator(t *testing.T, s Suggester, f Fetcher, inv llm.Invoker) (*Generator, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ranker := news.NewRanker(inv, "fast", news.NewRand(1))
	writer := &Writer{LLM: inv, Model: "fast", Timeout: time.Second, Retry: retry.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}}
	return NewGenerator(s, f, ranker, writer, store), store
}

func TestGenerateOffline(t *testing.T) {
	sug := &fakeSuggester{result: model.Suggestions{
		NewspaperName: "The Tech Times",
		Feeds: []model.FeedSuggestion{
			{URL: "https://a.example.com/rss"},
			{URL: "https://default.example.com/rss", IsDefault: true},
		},
	}}
	fetch := &fakeFetcher{articles: sampleArticles(20)}
	g, _ := newTestGenerator(t, sug, fetch, llm.Offline{})

	paper, err := g.Generate(context.Background(), Request{Theme: " technology ", Locale: model.LocaleEN})
	require.NoError(t, err)

	_, err = uuid.Parse(paper.ID)
	assert.NoError(t, err)
	assert.Equal(t, "The Tech Times", paper.Name)
	assert.Equal(t, "technology", paper.Theme)
	assert.Equal(t, []string{"https://a.example.com/rss", "https://default.example.com/rss"}, fetch.urls)
	assert.GreaterOrEqual(t, len(paper.Articles), news.MinSelection)
	assert.LessOrEqual(t, len(paper.Articles), news.MaxSelection)
	assert.True(t, paper.Articles[0].HasImage())
	assert.Contains(t, paper.Summary, "technology")
	assert.NotEmpty(t, paper.Editorial)
	assert.Equal(t, "en", paper.FeedLanguages["https://a.example.com/rss"])
	assert.Equal(t, sug.result.Feeds, sug.recorded)

	loaded, err := g.Get(context.Background(), paper.ID)
	require.NoError(t, err)
	assert.Equal(t, paper.ID, loaded.ID)
	assert.Equal(t, paper.Summary, loaded.Summary)
	assert.Len(t, loaded.Articles, len(paper.Articles))
	assert.True(t, paper.CreatedAt.Equal(loaded.CreatedAt))

	list, err := g.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, paper.ID, list[0].ID)
}

func TestGenerateWithGivenFeeds(t *testing.T) {
	sug := &fakeSuggester{}
	fetch := &fakeFetcher{articles: sampleArticles(3)}
	g, _ := newTestGenerator(t, sug, fetch, nil)

	paper, err := g.Generate(context.Background(), Request{
		Theme:    "宇宙",
		Locale:   model.LocaleJA,
		FeedURLs: []string{"https://a.example.com/rss", " https://a.example.com/rss", "not-a-url", "https://b.example.com/feed"},
	})
	require.NoError(t, err)
	assert.Zero(t, sug.calls)
	assert.Equal(t, []string{"https://a.example.com/rss", "https://b.example.com/feed"}, fetch.urls)
	assert.Equal(t, "宇宙新聞", paper.Name)
	assert.Len(t, paper.Articles, 3)
	assert.Contains(t, paper.Summary, "宇宙")
}

func TestGenerateTranslatesForeignHeadlines(t *testing.T) {
	countRE := regexp.MustCompile(`exactly (\d+) strings`)
	translator := translate.New(llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		m := countRE.FindStringSubmatch(req.Prompt)
		if m == nil {
			return "", errors.New("unexpected prompt")
		}
		n, _ := strconv.Atoi(m[1])
		titles := make([]string, n)
		for i := range titles {
			titles[i] = fmt.Sprintf("見出し%d", i)
		}
		b, _ := json.Marshal(map[string][]string{"titles": titles})
		return string(b), nil
	}), "fast")

	sug := &fakeSuggester{result: model.Suggestions{Feeds: []model.FeedSuggestion{{URL: "https://a.example.com/rss"}}}}
	g, _ := newTestGenerator(t, sug, &fakeFetcher{articles: sampleArticles(10)}, nil)
	g.Translator = translator

	paper, err := g.Generate(context.Background(), Request{Theme: "テクノロジー", Locale: model.LocaleJA})
	require.NoError(t, err)
	require.NotEmpty(t, paper.Articles)
	for _, a := range paper.Articles {
		assert.True(t, strings.HasPrefix(a.TranslatedTitle, "見出し"), a.Title)
	}
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, paper *Newspaper) error {
	f.published = append(f.published, paper.ID)
	return f.err
}

func TestGeneratePublishes(t *testing.T) {
	sug := &fakeSuggester{result: model.Suggestions{Feeds: []model.FeedSuggestion{{URL: "https://a.example.com/rss"}}}}
	g, _ := newTestGenerator(t, sug, &fakeFetcher{articles: sampleArticles(9)}, nil)
	pub := &fakePublisher{err: errors.New("telegram down")}
	g.Publisher = pub

	paper, err := g.Generate(context.Background(), Request{Theme: "tech"})
	require.NoError(t, err, "publish failures do not fail generation")
	assert.Equal(t, []string{paper.ID}, pub.published)

	g.Fetcher = &fakeFetcher{}
	_, err = g.Generate(context.Background(), Request{Theme: "tech"})
	require.NoError(t, err)
	assert.Len(t, pub.published, 1, "empty newspapers are not published")
}

func TestGenerateErrors(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeSuggester{}, &fakeFetcher{}, nil)
	_, err := g.Generate(context.Background(), Request{Theme: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	failing := &fakeSuggester{err: errors.New("suggest: no feeds available")}
	g, _ = newTestGenerator(t, failing, &fakeFetcher{}, nil)
	_, err = g.Generate(context.Background(), Request{Theme: "tech"})
	assert.Error(t, err)
}

func TestGenerateNoArticles(t *testing.T) {
	sug := &fakeSuggester{result: model.Suggestions{Feeds: []model.FeedSuggestion{{URL: "https://a.example.com/rss"}}}}
	g, _ := newTestGenerator(t, sug, &fakeFetcher{}, nil)

	paper, err := g.Generate(context.Background(), Request{Theme: "tech"})
	require.NoError(t, err)
	assert.Empty(t, paper.Articles)
	assert.Nil(t, paper.Layout().Lead)
	assert.Contains(t, paper.Summary, "No tech stories")
}

func TestGetUnknown(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeSuggester{}, &fakeFetcher{}, nil)
	_, err := g.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	g.Store = nil
	_, err = g.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	var calls int
	inv := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 unavailable")
		}
		return "  A fine edition.  ", nil
	})
	w := &Writer{LLM: inv, Retry: retry.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}}

	assert.Equal(t, "A fine edition.", w.Summary(context.Background(), "tech", model.LocaleEN, nil))
	assert.Equal(t, 3, calls)
}

func TestWriterFallbacks(t *testing.T) {
	articles := []model.ScoredArticle{
		{Article: model.Article{Title: "Lead story", SourceFeedURL: "a", ImageURL: "https://cdn.example.com/x.jpg"}},
		{Article: model.Article{Title: "Second", SourceFeedURL: "b"}},
		{Article: model.Article{Title: "Third", SourceFeedURL: "b"}},
	}

	var calls int
	empty := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls++
		return "   ", nil
	})
	w := &Writer{LLM: empty, Retry: retry.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}}
	summary := w.Summary(context.Background(), "tech", model.LocaleEN, articles)
	assert.Equal(t, 1, calls, "empty responses are not retried")
	assert.Equal(t, `Today's tech edition brings 3 stories, led by "Lead story". Also inside: Second; Third.`, summary)

	calls = 0
	failing := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	w = &Writer{LLM: failing, Retry: retry.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}}
	editorial := w.Editorial(context.Background(), "tech", model.LocaleEN, articles)
	assert.Equal(t, 2, calls)
	assert.Contains(t, editorial, "3 stories about tech from 2 sources, 1 of them illustrated")

	w = &Writer{LLM: llm.Offline{}}
	assert.Contains(t, w.Summary(context.Background(), "科学", model.LocaleJA, articles), "「Lead story」")
	assert.Contains(t, w.Editorial(context.Background(), "科学", model.LocaleJA, articles), "2件の情報源")
}

func TestLayout(t *testing.T) {
	mk := func(n int) []model.ScoredArticle {
		out := make([]model.ScoredArticle, n)
		for i := range out {
			out[i].Title = fmt.Sprintf("A%d", i)
		}
		return out
	}

	l := NewLayout(mk(0))
	assert.Nil(t, l.Lead)
	assert.Empty(t, l.TopStories)

	l = NewLayout(mk(3))
	require.NotNil(t, l.Lead)
	assert.Equal(t, "A0", l.Lead.Title)
	assert.Len(t, l.TopStories, 2)
	assert.Empty(t, l.Remaining)

	l = NewLayout(mk(12))
	assert.Len(t, l.TopStories, MaxTopStories)
	assert.Len(t, l.Remaining, 7)
	assert.Equal(t, "A5", l.Remaining[0].Title)
}
