// Package storage persists categories, feed usage and generated newspapers in
// PostgreSQL or SQLite through sqlx.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/newspaper/internal/catalog"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

func init() {
	// sqlx does not know the modernc driver name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		names TEXT NOT NULL,
		keywords TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS category_feeds (
		category_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		locale TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (category_id, url)
	)`,
	`CREATE TABLE IF NOT EXISTS feed_usage (
		category_id TEXT NOT NULL,
		locale TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		use_count INTEGER NOT NULL DEFAULT 0,
		last_used_at TIMESTAMP NOT NULL,
		PRIMARY KEY (category_id, locale, url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feed_usage_rank ON feed_usage(category_id, locale, use_count DESC)`,
	`CREATE TABLE IF NOT EXISTS newspapers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		theme TEXT NOT NULL,
		locale TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_newspapers_created_at ON newspapers(created_at DESC)`,
}

// Store is the sqlx-backed repository.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects with driver ("postgres" or "sqlite") and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps ":memory:" databases shared and
		// serializes SQLite writers.
		db.SetMaxOpenConns(1)
	}

	s := New(db)
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database connected", "driver", driver)
	return s, nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SeedCatalog upserts the curated categories and their feeds.
func (s *Store) SeedCatalog(ctx context.Context, cat *catalog.Catalog) error {
	upsertCategory := s.db.Rebind(`
		INSERT INTO categories (id, names, keywords, sort_order) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET names = excluded.names, keywords = excluded.keywords, sort_order = excluded.sort_order`)
	upsertFeed := s.db.Rebind(`
		INSERT INTO category_feeds (category_id, url, title, locale, sort_order) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (category_id, url) DO UPDATE SET title = excluded.title, locale = excluded.locale, sort_order = excluded.sort_order`)

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for i, c := range cat.Categories {
			names, err := json.Marshal(c.Names)
			if err != nil {
				return err
			}
			keywords, err := json.Marshal(c.Keywords)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, upsertCategory, c.ID, string(names), string(keywords), i); err != nil {
				return fmt.Errorf("category %s: %w", c.ID, err)
			}
			for j, f := range c.Feeds {
				if _, err := tx.ExecContext(ctx, upsertFeed, c.ID, f.URL, f.Title, f.Locale, j); err != nil {
					return fmt.Errorf("category %s feed %s: %w", c.ID, f.URL, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	logger.Info("Catalog seeded", "categories", len(cat.Categories))
	return nil
}

type categoryRow struct {
	ID       string `db:"id"`
	Names    string `db:"names"`
	Keywords string `db:"keywords"`
}

type feedRow struct {
	CategoryID string `db:"category_id"`
	URL        string `db:"url"`
	Title      string `db:"title"`
	Locale     string `db:"locale"`
}

// Categories returns every category with its feeds, in catalog order.
func (s *Store) Categories(ctx context.Context) ([]catalog.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, names, keywords FROM categories ORDER BY sort_order, id`); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	var feeds []feedRow
	if err := s.db.SelectContext(ctx, &feeds, `SELECT category_id, url, title, locale FROM category_feeds ORDER BY category_id, sort_order`); err != nil {
		return nil, fmt.Errorf("failed to list category feeds: %w", err)
	}
	byCategory := map[string][]catalog.Feed{}
	for _, f := range feeds {
		byCategory[f.CategoryID] = append(byCategory[f.CategoryID], catalog.Feed{URL: f.URL, Title: f.Title, Locale: f.Locale})
	}

	out := make([]catalog.Category, 0, len(rows))
	for _, r := range rows {
		c := catalog.Category{ID: r.ID, Feeds: byCategory[r.ID]}
		if err := json.Unmarshal([]byte(r.Names), &c.Names); err != nil {
			return nil, fmt.Errorf("category %s names: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Keywords), &c.Keywords); err != nil {
			return nil, fmt.Errorf("category %s keywords: %w", r.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CategoryFeeds returns the category's feeds usable for locale.
func (s *Store) CategoryFeeds(ctx context.Context, categoryID string, locale model.Locale) ([]catalog.Feed, error) {
	var rows []feedRow
	q := s.db.Rebind(`
		SELECT category_id, url, title, locale FROM category_feeds
		WHERE category_id = ? AND (locale = '' OR locale = ?)
		ORDER BY sort_order`)
	if err := s.db.SelectContext(ctx, &rows, q, categoryID, string(locale)); err != nil {
		return nil, fmt.Errorf("failed to list feeds for %s: %w", categoryID, err)
	}
	out := make([]catalog.Feed, 0, len(rows))
	for _, r := range rows {
		out = append(out, catalog.Feed{URL: r.URL, Title: r.Title, Locale: r.Locale})
	}
	return out, nil
}

// PopularFeeds returns the most used feeds of a category, most used first.
func (s *Store) PopularFeeds(ctx context.Context, categoryID string, locale model.Locale, limit int) ([]model.PopularFeed, error) {
	if limit <= 0 {
		limit = 15
	}
	var out []model.PopularFeed
	q := s.db.Rebind(`
		SELECT url, title, use_count, last_used_at FROM feed_usage
		WHERE category_id = ? AND locale = ?
		ORDER BY use_count DESC, last_used_at DESC, url
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, categoryID, string(locale), limit); err != nil {
		return nil, fmt.Errorf("failed to list popular feeds for %s: %w", categoryID, err)
	}
	return out, nil
}

// RecordUsage bumps the use count of every feed for the category.
func (s *Store) RecordUsage(ctx context.Context, categoryID string, locale model.Locale, feeds []model.FeedSuggestion) error {
	q := s.db.Rebind(`
		INSERT INTO feed_usage (category_id, locale, url, title, use_count, last_used_at) VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (category_id, locale, url) DO UPDATE SET
			use_count = feed_usage.use_count + 1,
			last_used_at = excluded.last_used_at,
			title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE feed_usage.title END`)
	now := s.now().UTC()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range feeds {
			if _, err := tx.ExecContext(ctx, q, categoryID, string(locale), f.URL, f.Title, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// NewspaperRecord is a stored newspaper; Payload is its JSON document.
type NewspaperRecord struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Theme     string    `db:"theme"`
	Locale    string    `db:"locale"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) SaveNewspaper(ctx context.Context, rec NewspaperRecord) error {
	q := s.db.Rebind(`
		INSERT INTO newspapers (id, name, theme, locale, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, payload = excluded.payload`)
	if _, err := s.db.ExecContext(ctx, q, rec.ID, rec.Name, rec.Theme, rec.Locale, rec.Payload, rec.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save newspaper %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Newspaper(ctx context.Context, id string) (NewspaperRecord, error) {
	var rec NewspaperRecord
	q := s.db.Rebind(`SELECT id, name, theme, locale, payload, created_at FROM newspapers WHERE id = ?`)
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewspaperRecord{}, ErrNotFound
		}
		return NewspaperRecord{}, fmt.Errorf("failed to load newspaper %s: %w", id, err)
	}
	return rec, nil
}

// RecentNewspapers lists the newest newspapers first.
func (s *Store) RecentNewspapers(ctx context.Context, limit int) ([]NewspaperRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []NewspaperRecord
	q := s.db.Rebind(`SELECT id, name, theme, locale, payload, created_at FROM newspapers ORDER BY created_at DESC, id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, fmt.Errorf("failed to list newspapers: %w", err)
	}
	return out, nil
}

// GetStats returns row counts per table.
func (s *Store) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)
	for _, table := range []string{"categories", "category_feeds", "feed_usage", "newspapers"} {
		var n int
		if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table); err != nil {
			return nil, err
		}
		stats[table] = n
	}
	return stats, nil
}
