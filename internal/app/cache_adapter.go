package app

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/newspaper/internal/cache"
	"github.com/deusflow/newspaper/internal/catalog"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/suggest"
)

// CachedRepository wraps a suggestion repository and keeps popular feed
// rankings in memory. Recording usage drops every cached ranking.
type CachedRepository struct {
	next    suggest.Repository
	popular *cache.Cache[[]model.PopularFeed]
}

func NewCachedRepository(next suggest.Repository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{next: next, popular: cache.New[[]model.PopularFeed](ttl)}
}

func popularKey(categoryID string, locale model.Locale, limit int) string {
	return cache.Key("popular", categoryID, string(locale), fmt.Sprint(limit))
}

func (c *CachedRepository) Categories(ctx context.Context) ([]catalog.Category, error) {
	return c.next.Categories(ctx)
}

func (c *CachedRepository) CategoryFeeds(ctx context.Context, categoryID string, locale model.Locale) ([]catalog.Feed, error) {
	return c.next.CategoryFeeds(ctx, categoryID, locale)
}

func (c *CachedRepository) PopularFeeds(ctx context.Context, categoryID string, locale model.Locale, limit int) ([]model.PopularFeed, error) {
	key := popularKey(categoryID, locale, limit)
	if feeds, ok := c.popular.Get(key); ok {
		logger.Debug("Popular feeds cache hit", "category", categoryID, "locale", locale)
		return append([]model.PopularFeed(nil), feeds...), nil
	}

	feeds, err := c.next.PopularFeeds(ctx, categoryID, locale, limit)
	if err != nil {
		return nil, err
	}
	c.popular.Set(key, append([]model.PopularFeed(nil), feeds...))
	return feeds, nil
}

func (c *CachedRepository) RecordUsage(ctx context.Context, categoryID string, locale model.Locale, feeds []model.FeedSuggestion) error {
	c.popular.Clear()
	return c.next.RecordUsage(ctx, categoryID, locale, feeds)
}

func (c *CachedRepository) Close() {
	c.popular.Close()
}
