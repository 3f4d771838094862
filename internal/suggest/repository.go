package suggest

import (
	"context"

	"github.com/deusflow/newspaper/internal/catalog"
	"github.com/deusflow/newspaper/internal/model"
)

// Repository is the category and usage store behind the fast path.
type Repository interface {
	Categories(ctx context.Context) ([]catalog.Category, error)
	CategoryFeeds(ctx context.Context, categoryID string, locale model.Locale) ([]catalog.Feed, error)
	PopularFeeds(ctx context.Context, categoryID string, locale model.Locale, limit int) ([]model.PopularFeed, error)
	RecordUsage(ctx context.Context, categoryID string, locale model.Locale, feeds []model.FeedSuggestion) error
}

// CatalogRepository serves categories straight from the curated catalog. It
// has no usage history.
type CatalogRepository struct {
	Catalog *catalog.Catalog
}

func (c CatalogRepository) Categories(context.Context) ([]catalog.Category, error) {
	return c.Catalog.Categories, nil
}

func (c CatalogRepository) CategoryFeeds(_ context.Context, categoryID string, locale model.Locale) ([]catalog.Feed, error) {
	for _, cat := range c.Catalog.Categories {
		if cat.ID == categoryID {
			return cat.FeedsFor(locale), nil
		}
	}
	return nil, nil
}

func (CatalogRepository) PopularFeeds(context.Context, string, model.Locale, int) ([]model.PopularFeed, error) {
	return nil, nil
}

func (CatalogRepository) RecordUsage(context.Context, string, model.Locale, []model.FeedSuggestion) error {
	return nil
}
