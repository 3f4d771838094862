package rss

import (
	"context"
	"sort"

	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
)

// MinArticles is the article count a window must reach before escalation stops.
const MinArticles = 8

// Windows are the look-back periods in days, tried in order.
var Windows = []int{3, 7, 14}

// FetchForNewspaper widens the look-back window until MinArticles is reached
// or the windows run out, then sorts newest first. The widest result is
// accepted even when it stays under the minimum.
func (f *Fetcher) FetchForNewspaper(ctx context.Context, urls []string) Result {
	var res Result
	for i, days := range Windows {
		if i > 0 {
			metrics.Global.IncrementWindowEscalations()
			logger.Info("Widening article window", "days_back", days, "previous_articles", len(res.Articles))
		}
		res = f.Fetch(ctx, urls, days)
		if len(res.Articles) >= MinArticles {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if len(res.Articles) < MinArticles {
		logger.Warn("Article window exhausted below minimum", "articles", len(res.Articles), "min", MinArticles)
	}

	sort.SliceStable(res.Articles, func(i, j int) bool {
		return res.Articles[i].PublicationDate.After(res.Articles[j].PublicationDate)
	})
	return res
}
