// Package newspaper generates, stores and loads newspapers: feed suggestion,
// fetching, ranking, summary and editorial writing, then persistence.
package newspaper

import (
	"time"

	"github.com/deusflow/newspaper/internal/model"
)

type Newspaper struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Theme         string                 `json:"theme"`
	Locale        model.Locale           `json:"locale"`
	Feeds         []model.FeedSuggestion `json:"feeds"`
	Articles      []model.ScoredArticle  `json:"articles"`
	Summary       string                 `json:"summary"`
	Editorial     string                 `json:"editorial"`
	FeedLanguages map[string]string      `json:"feedLanguages"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// Listing is the short form used by newspaper lists.
type Listing struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Theme     string       `json:"theme"`
	Locale    model.Locale `json:"locale"`
	CreatedAt time.Time    `json:"createdAt"`
}

// MaxTopStories is the number of articles shown under the lead.
const MaxTopStories = 4

// Layout splits ordered articles into page slots.
type Layout struct {
	Lead       *model.ScoredArticle  `json:"lead,omitempty"`
	TopStories []model.ScoredArticle `json:"topStories"`
	Remaining  []model.ScoredArticle `json:"remaining"`
}

func NewLayout(articles []model.ScoredArticle) Layout {
	l := Layout{TopStories: []model.ScoredArticle{}, Remaining: []model.ScoredArticle{}}
	if len(articles) == 0 {
		return l
	}
	lead := articles[0]
	l.Lead = &lead
	rest := articles[1:]
	n := min(MaxTopStories, len(rest))
	l.TopStories = append(l.TopStories, rest[:n]...)
	l.Remaining = append(l.Remaining, rest[n:]...)
	return l
}

func (n *Newspaper) Layout() Layout {
	return NewLayout(n.Articles)
}
