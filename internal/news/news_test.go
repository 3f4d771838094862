package news

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeArticles(n int, hasImage func(i int) bool) []model.Article {
	out := make([]model.Article, n)
	for i := range out {
		out[i] = model.Article{
			Title:           fmt.Sprintf("Article %d", i),
			Description:     fmt.Sprintf("Description %d", i),
			Link:            fmt.Sprintf("https://example.com/%d", i),
			PublicationDate: baseTime.Add(-time.Duration(i) * time.Hour),
			SourceFeedURL:   "https://example.com/feed",
		}
		if hasImage != nil && hasImage(i) {
			out[i].ImageURL = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
		}
	}
	return out
}

func reply(text string, calls *int) llm.Invoker {
	return llm.Func(func(context.Context, llm.Request) (string, error) {
		if calls != nil {
			*calls++
		}
		return text, nil
	})
}

func newTestRanker(inv llm.Invoker, seed int64) *Ranker {
	r := NewRanker(inv, "fast-model", NewRand(seed))
	r.now = func() time.Time { return baseTime }
	return r
}

// zeroRand always returns the smallest value.
type zeroRand struct{}

func (zeroRand) Intn(int) int     { return 0 }
func (zeroRand) Float64() float64 { return 0 }

func TestFilterByThemeSkipsSmallInput(t *testing.T) {
	calls := 0
	r := newTestRanker(reply(`{"relevantIndices":[0]}`, &calls), 1)
	in := makeArticles(7, nil)

	assert.Equal(t, in, r.FilterByTheme(context.Background(), in, "tech", model.LocaleEN))
	assert.Zero(t, calls)
}

func TestFilterByTheme(t *testing.T) {
	in := makeArticles(12, nil)
	tests := []struct {
		name     string
		response string
		want     []int
	}{
		{"keeps original order", `{"relevantIndices":[9,0,1,2,3,4,5,6]}`, []int{0, 1, 2, 3, 4, 5, 6, 9}},
		{"fenced json", "```json\n{\"relevantIndices\":[1,2,3,4,5,6,7,8]}\n```", []int{1, 2, 3, 4, 5, 6, 7, 8}},
		{"prose around object", `Sure! {"relevantIndices": [0,1,2,3,4,5,6,7,],} hope that helps`, []int{0, 1, 2, 3, 4, 5, 6, 7}},
		{"bare array lacks the field", `[11,10,9,8,7,6,5,4]`, nil},
		{"drops out of range and duplicates", `{"relevantIndices":[0,0,1,2,3,4,5,6,7,99,-1,2.5]}`, []int{0, 1, 2, 3, 4, 5, 6, 7}},
		{"too few falls back", `{"relevantIndices":[0,1,2]}`, nil},
		{"duplicates do not count twice", `{"relevantIndices":[0,0,0,0,1,1,1,1,2]}`, nil},
		{"all out of range", `{"relevantIndices":[100,200,300,400,500,600,700,800]}`, nil},
		{"missing field", `{"indices":[0,1,2,3,4,5,6,7]}`, nil},
		{"wrong type", `{"relevantIndices":"0,1,2"}`, nil},
		{"not json", `I could not decide.`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRanker(reply(tt.response, nil), 1)
			got := r.FilterByTheme(context.Background(), in, "tech", model.LocaleEN)
			if tt.want == nil {
				assert.Equal(t, in, got)
				return
			}
			want := make([]model.Article, 0, len(tt.want))
			for _, i := range tt.want {
				want = append(want, in[i])
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestFilterByThemeLLMFailure(t *testing.T) {
	in := makeArticles(10, nil)
	failing := llm.Func(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("503 service unavailable")
	})

	assert.Equal(t, in, newTestRanker(failing, 1).FilterByTheme(context.Background(), in, "tech", model.LocaleEN))
	assert.Equal(t, in, newTestRanker(llm.Offline{}, 1).FilterByTheme(context.Background(), in, "tech", model.LocaleEN))
	assert.Equal(t, in, newTestRanker(nil, 1).FilterByTheme(context.Background(), in, "tech", model.LocaleEN))
}

func TestFilterPromptLocale(t *testing.T) {
	var prompt string
	inv := llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		prompt = req.Prompt
		return `{"relevantIndices":[]}`, nil
	})
	in := makeArticles(8, nil)

	newTestRanker(inv, 1).FilterByTheme(context.Background(), in, "宇宙", model.LocaleJA)
	assert.Contains(t, prompt, "「宇宙」")
	assert.Contains(t, prompt, "[7] Article 7")
}

func TestCalculateImportanceFallbackBounds(t *testing.T) {
	in := makeArticles(30, func(i int) bool { return i%2 == 0 })
	in[3].PublicationDate = baseTime.Add(48 * time.Hour)
	in[5].PublicationDate = baseTime.Add(-60 * 24 * time.Hour)
	in[7].Title = "technology technology ai tech"

	for seed := int64(0); seed < 50; seed++ {
		scored := newTestRanker(llm.Offline{}, seed).CalculateImportance(context.Background(), in, "technology ai", model.LocaleEN, []string{"https://example.com/feed"})
		require.Len(t, scored, len(in))
		for i, s := range scored {
			assert.Equal(t, in[i], s.Article)
			assert.GreaterOrEqual(t, s.ImportanceScore, 0.0)
			assert.LessOrEqual(t, s.ImportanceScore, 100.0)
		}
	}
}

func TestCalculateImportanceImageBonus(t *testing.T) {
	variants := []model.Article{
		{Title: "Chip makers race ahead", Description: "technology news", PublicationDate: baseTime},
		{Title: "Quiet day", PublicationDate: baseTime.Add(-20 * 24 * time.Hour)},
		{Title: "Future dated", PublicationDate: baseTime.Add(time.Hour)},
		{Title: "AI technology tech", Description: "ai ai ai", PublicationDate: baseTime.Add(-time.Hour)},
	}
	for seed := int64(0); seed < 200; seed++ {
		for vi, v := range variants {
			for _, fromDefault := range []bool{false, true} {
				plain := v
				plain.SourceFeedURL = "https://example.com/feed"
				withImage := plain
				withImage.ImageURL = "https://cdn.example.com/a.jpg"

				var defaults []string
				if fromDefault {
					defaults = []string{plain.SourceFeedURL}
				}
				scored := newTestRanker(nil, seed).CalculateImportance(context.Background(),
					[]model.Article{withImage, plain}, "technology ai", model.LocaleEN, defaults)
				diff := scored[0].ImportanceScore - scored[1].ImportanceScore
				assert.GreaterOrEqual(t, diff, 10.0, "seed %d variant %d", seed, vi)
				assert.LessOrEqual(t, diff, 60.0, "seed %d variant %d", seed, vi)
			}
		}
	}
}

func TestFallbackScoreComponents(t *testing.T) {
	r := newTestRanker(nil, 0)
	r.Rand = zeroRand{}

	fresh := model.Article{Title: "nothing relevant", PublicationDate: baseTime}
	assert.InDelta(t, 20.0, r.fallbackScore(fresh, "space", baseTime, false), 1e-9)
	assert.InDelta(t, 15.0, r.fallbackScore(fresh, "space", baseTime, true), 1e-9)

	old := model.Article{Title: "space launch", PublicationDate: baseTime.Add(-30 * 24 * time.Hour)}
	assert.InDelta(t, 20.0, r.fallbackScore(old, "space", baseTime, false), 1e-9)

	stale := model.Article{Title: "nothing", PublicationDate: baseTime.Add(-30 * 24 * time.Hour)}
	assert.InDelta(t, 0.0, r.fallbackScore(stale, "space", baseTime, true), 1e-9)

	stale.ImageURL = "https://cdn.example.com/x.png"
	assert.InDelta(t, ImageBonus, r.fallbackScore(stale, "space", baseTime, true), 1e-9)
}

func TestCalculateImportanceLLMScores(t *testing.T) {
	in := makeArticles(4, nil)
	r := newTestRanker(reply(`{"scores":[150, -20, 55.5, 80]}`, nil), 1)

	scored := r.CalculateImportance(context.Background(), in, "tech", model.LocaleEN, nil)
	require.Len(t, scored, 4)
	assert.Equal(t, []float64{100, 0, 55.5, 80}, []float64{
		scored[0].ImportanceScore, scored[1].ImportanceScore, scored[2].ImportanceScore, scored[3].ImportanceScore,
	})
}

func TestCalculateImportanceBareArrayScores(t *testing.T) {
	in := makeArticles(3, nil)
	r := newTestRanker(reply(`Scores: [70, 20, 90]`, nil), 1)

	scored := r.CalculateImportance(context.Background(), in, "tech", model.LocaleEN, nil)
	require.Len(t, scored, 3)
	assert.Equal(t, []float64{70, 20, 90}, []float64{scored[0].ImportanceScore, scored[1].ImportanceScore, scored[2].ImportanceScore})
}

func TestCalculateImportanceShortLLMResponse(t *testing.T) {
	in := makeArticles(3, func(i int) bool { return i == 2 })
	r := newTestRanker(reply("```\n{\"scores\":[42]}\n```", nil), 1)

	scored := r.CalculateImportance(context.Background(), in, "tech", model.LocaleEN, nil)
	require.Len(t, scored, 3)
	assert.Equal(t, 42.0, scored[0].ImportanceScore)
	assert.GreaterOrEqual(t, scored[2].ImportanceScore, ImageBonus)
}

func TestCalculateImportanceMalformedLLM(t *testing.T) {
	in := makeArticles(5, nil)
	r := newTestRanker(reply(`{"scores":["high","low"]}`, nil), 1)

	for _, s := range r.CalculateImportance(context.Background(), in, "tech", model.LocaleEN, nil) {
		assert.GreaterOrEqual(t, s.ImportanceScore, 0.0)
		assert.LessOrEqual(t, s.ImportanceScore, 100.0)
	}
	assert.Nil(t, r.CalculateImportance(context.Background(), nil, "tech", model.LocaleEN, nil))
}

func scoredOf(articles []model.Article) []model.ScoredArticle {
	out := make([]model.ScoredArticle, len(articles))
	for i, a := range articles {
		out[i] = model.ScoredArticle{Article: a, ImportanceScore: float64(100 - i)}
	}
	return out
}

func links(scored []model.ScoredArticle) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Link
	}
	sort.Strings(out)
	return out
}

func TestSelectForNewspaperInvariants(t *testing.T) {
	cases := map[string]func(int) bool{
		"mixed":      func(i int) bool { return i%3 == 0 },
		"one image":  func(i int) bool { return i == 6 },
		"all images": func(int) bool { return true },
		"no images":  nil,
	}
	for name, hasImage := range cases {
		for _, n := range []int{0, 3, 8, 12, 20} {
			for seed := int64(0); seed < 30; seed++ {
				in := scoredOf(makeArticles(n, hasImage))
				r := newTestRanker(nil, seed)

				out := r.SelectForNewspaper(in)
				target := len(out)
				if n >= MaxSelection {
					assert.GreaterOrEqual(t, target, MinSelection, name)
					assert.LessOrEqual(t, target, MaxSelection, name)
				} else if n <= MinSelection {
					assert.Equal(t, n, target, name)
				}

				assert.Equal(t, links(in[:target]), links(out), "%s n=%d seed=%d", name, n, seed)

				hasAny := false
				for _, a := range in[:target] {
					hasAny = hasAny || a.HasImage()
				}
				if hasAny {
					assert.True(t, out[0].HasImage(), "%s n=%d seed=%d", name, n, seed)
				}

				seenPlain := false
				for _, a := range out {
					if !a.HasImage() {
						seenPlain = true
					} else {
						assert.False(t, seenPlain, "image after non-image")
					}
				}
			}
		}
	}
}

func TestSelectForNewspaperDoesNotMutateInput(t *testing.T) {
	in := scoredOf(makeArticles(10, func(i int) bool { return i > 5 }))
	snapshot := append([]model.ScoredArticle(nil), in...)

	newTestRanker(nil, 7).SelectForNewspaper(in)
	assert.Equal(t, snapshot, in)
}

func TestSelectForNewspaperTargetRange(t *testing.T) {
	in := scoredOf(makeArticles(20, nil))
	seen := map[int]bool{}
	r := newTestRanker(nil, 42)
	for i := 0; i < 2000; i++ {
		seen[len(r.SelectForNewspaper(in))] = true
	}
	for n := MinSelection; n <= MaxSelection; n++ {
		assert.True(t, seen[n], "target %d never chosen", n)
	}
	assert.Len(t, seen, MaxSelection-MinSelection+1)
}

func TestShuffleCoversAllPermutations(t *testing.T) {
	r := newTestRanker(nil, 3)
	counts := map[string]int{}
	const runs = 6000
	for i := 0; i < runs; i++ {
		a := scoredOf(makeArticles(3, nil))
		r.shuffle(a)
		key := strings.Join([]string{a[0].Link, a[1].Link, a[2].Link}, ",")
		counts[key]++
	}
	require.Len(t, counts, 6)
	for perm, c := range counts {
		assert.InDelta(t, runs/6, c, runs/6*0.2, perm)
	}
}

func TestSortByImportance(t *testing.T) {
	a := []model.ScoredArticle{
		{Article: model.Article{Link: "old", PublicationDate: baseTime.Add(-time.Hour)}, ImportanceScore: 50},
		{Article: model.Article{Link: "top", PublicationDate: baseTime.Add(-2 * time.Hour)}, ImportanceScore: 90},
		{Article: model.Article{Link: "new", PublicationDate: baseTime}, ImportanceScore: 50},
	}
	SortByImportance(a)
	assert.Equal(t, []string{"top", "new", "old"}, []string{a[0].Link, a[1].Link, a[2].Link})
}
