package news

import (
	"sort"

	"github.com/samber/lo"

	"github.com/deusflow/newspaper/internal/model"
)

// Bounds of the per-newspaper article count, inclusive.
const (
	MinSelection = 8
	MaxSelection = 15
)

// SortByImportance orders articles by score, newest first on ties.
func SortByImportance(scored []model.ScoredArticle) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].ImportanceScore != scored[j].ImportanceScore {
			return scored[i].ImportanceScore > scored[j].ImportanceScore
		}
		return scored[i].PublicationDate.After(scored[j].PublicationDate)
	})
}

// SelectForNewspaper takes the leading min(target, len) articles for a random
// target in [MinSelection, MaxSelection], then shuffles the image and
// non-image groups separately and puts images first so the lead has a visual.
func (r *Ranker) SelectForNewspaper(scored []model.ScoredArticle) []model.ScoredArticle {
	target := MinSelection + r.Rand.Intn(MaxSelection-MinSelection+1)
	n := min(target, len(scored))

	withImage, withoutImage := lo.FilterReject(scored[:n], func(a model.ScoredArticle, _ int) bool {
		return a.HasImage()
	})
	r.shuffle(withImage)
	r.shuffle(withoutImage)

	out := make([]model.ScoredArticle, 0, n)
	out = append(out, withImage...)
	return append(out, withoutImage...)
}

// shuffle is an in-place Fisher-Yates shuffle.
func (r *Ranker) shuffle(a []model.ScoredArticle) {
	for i := len(a) - 1; i > 0; i-- {
		j := r.Rand.Intn(i + 1)
		a[i], a[j] = a[j], a[i]
	}
}
