// Package model defines the article and feed types that flow through the
// newspaper pipeline.
package model

import (
	"fmt"
	"strings"
	"time"
)

type Locale string

const (
	LocaleEN Locale = "en"
	LocaleJA Locale = "ja"
)

// ParseLocale accepts "en" or "ja" (case-insensitive); empty defaults to en.
func ParseLocale(s string) (Locale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "en":
		return LocaleEN, nil
	case "ja":
		return LocaleJA, nil
	default:
		return "", fmt.Errorf("unsupported locale %q (valid: en, ja)", s)
	}
}

// Article is a normalized feed entry. It lives only for one generation request.
type Article struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Link            string    `json:"link"`
	PublicationDate time.Time `json:"publicationDate"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	SourceFeedURL   string    `json:"sourceFeedUrl"`
}

func (a Article) HasImage() bool {
	return strings.TrimSpace(a.ImageURL) != ""
}

// ScoredArticle carries a resolved importance score in [0,100].
// TranslatedTitle is set when the source feed's language differs from the
// newspaper locale.
type ScoredArticle struct {
	Article
	ImportanceScore float64 `json:"importanceScore"`
	TranslatedTitle string  `json:"translatedTitle,omitempty"`
}

type FeedSuggestion struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Reasoning string `json:"reasoning"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

type Suggestions struct {
	Feeds         []FeedSuggestion `json:"feeds"`
	NewspaperName string           `json:"newspaperName"`
}

// PopularFeed is a feed ranked by how often generated newspapers used it.
type PopularFeed struct {
	URL        string    `json:"url" db:"url"`
	Title      string    `json:"title" db:"title"`
	UseCount   int       `json:"useCount" db:"use_count"`
	LastUsedAt time.Time `json:"lastUsedAt" db:"last_used_at"`
}
