// Package catalog holds the curated categories and default feeds used to
// answer feed suggestions without the language model.
package catalog

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/textutil"
)

//go:embed catalog.yaml
var embedded []byte

// MinDefaults is the number of feeds every suggestion response must reach.
const MinDefaults = 15

type Feed struct {
	URL    string `yaml:"url"`
	Title  string `yaml:"title"`
	Locale string `yaml:"locale,omitempty"`
}

type Category struct {
	ID       string            `yaml:"id"`
	Names    map[string]string `yaml:"names"`
	Keywords []string          `yaml:"keywords"`
	Feeds    []Feed            `yaml:"feeds"`
}

// Name returns the category name for locale, falling back to English or the id.
func (c Category) Name(locale model.Locale) string {
	if n := c.Names[string(locale)]; n != "" {
		return n
	}
	if n := c.Names[string(model.LocaleEN)]; n != "" {
		return n
	}
	return c.ID
}

type Catalog struct {
	Categories []Category        `yaml:"categories"`
	Defaults   map[string][]Feed `yaml:"defaults"`
}

// Load reads the catalog from path, or the embedded copy when path is empty.
func Load(path string) (*Catalog, error) {
	data := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := map[string]bool{}
	for i, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("category %d: id is required", i)
		}
		if seen[cat.ID] {
			return fmt.Errorf("category %q: duplicate id", cat.ID)
		}
		seen[cat.ID] = true
		for _, f := range cat.Feeds {
			if strings.TrimSpace(f.URL) == "" {
				return fmt.Errorf("category %q: feed url is required", cat.ID)
			}
		}
	}
	for locale, feeds := range c.Defaults {
		for _, f := range feeds {
			if strings.TrimSpace(f.URL) == "" {
				return fmt.Errorf("defaults %q: feed url is required", locale)
			}
		}
	}

	// DefaultFeeds falls back to English only when a locale has no defaults.
	for locale, feeds := range c.Defaults {
		if n := countUsable(feeds); len(feeds) > 0 && n < MinDefaults {
			return fmt.Errorf("defaults %q: %d usable feeds, need at least %d", locale, n, MinDefaults)
		}
	}
	if n := countUsable(c.Defaults[string(model.LocaleEN)]); n < MinDefaults {
		return fmt.Errorf("defaults \"en\": %d usable feeds, need at least %d", n, MinDefaults)
	}
	return nil
}

// countUsable counts distinct http(s) feed URLs with a dotted host.
func countUsable(feeds []Feed) int {
	seen := map[string]bool{}
	for _, f := range feeds {
		u, err := url.Parse(strings.TrimSpace(f.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !strings.Contains(u.Hostname(), ".") {
			continue
		}
		seen[u.String()] = true
	}
	return len(seen)
}

// DefaultFeeds returns the curated fallback feeds for locale, English when the
// locale has none.
func (c *Catalog) DefaultFeeds(locale model.Locale) []model.FeedSuggestion {
	feeds := c.Defaults[string(locale)]
	if len(feeds) == 0 {
		feeds = c.Defaults[string(model.LocaleEN)]
	}
	out := make([]model.FeedSuggestion, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, model.FeedSuggestion{
			URL:       f.URL,
			Title:     f.Title,
			Reasoning: defaultReasoning(locale),
			IsDefault: true,
		})
	}
	return out
}

func defaultReasoning(locale model.Locale) string {
	if locale == model.LocaleJA {
		return "厳選されたデフォルトフィード"
	}
	return "Curated default feed"
}

// FeedsFor returns the category's feeds usable for locale. Feeds without a
// locale are usable everywhere.
func (cat Category) FeedsFor(locale model.Locale) []Feed {
	var out []Feed
	for _, f := range cat.Feeds {
		if f.Locale == "" || f.Locale == string(locale) {
			out = append(out, f)
		}
	}
	return out
}

// BestMatch picks the category whose names and keywords overlap the theme the
// most. Ties keep catalog order.
func BestMatch(theme string, categories []Category) (Category, bool) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return Category{}, false
	}

	var (
		best      Category
		bestScore int
	)
	for _, cat := range categories {
		terms := append([]string{cat.ID}, cat.Keywords...)
		for _, n := range cat.Names {
			terms = append(terms, n)
		}
		score := textutil.CountMatches(theme, terms)
		if score > bestScore {
			best, bestScore = cat, score
		}
	}
	return best, bestScore > 0
}
