package news

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/textutil"
)

// Fallback scoring weights. The base (recency + keyword overlap) never exceeds
// 40, so base + ImageBonus + jitter stays below 100 without clamping.
const (
	ImageBonus         = 40.0
	MaxJitter          = 20.0
	maxRecencyScore    = 20.0
	maxKeywordScore    = 20.0
	defaultFeedPenalty = 5.0
	recencyHorizon     = 14 * 24 * time.Hour
)

const scorePromptEN = `Rate how important each article is for a newspaper about "%s".
Use a scale from 0 (irrelevant) to 100 (front-page news). Articles with images make better lead stories.

%s
Respond with JSON only: {"scores": [..]} with exactly %d numbers in article order.`

const scorePromptJA = `「%s」をテーマにした新聞として、各記事の重要度を0（無関係）から100（一面記事）で評価してください。画像付きの記事はトップ記事に向いています。

%s
JSONのみで回答してください: {"scores": [..]} 記事の順番どおりに%d個の数値を含めること。`

// CalculateImportance scores every article in [0,100], keeping input order.
// LLM scores are clamped and any gaps are filled with the fallback formula.
func (r *Ranker) CalculateImportance(ctx context.Context, articles []model.Article, theme string, locale model.Locale, defaultFeedURLs []string) []model.ScoredArticle {
	if len(articles) == 0 {
		return nil
	}

	now := r.now()
	defaults := lo.SliceToMap(defaultFeedURLs, func(u string) (string, bool) { return u, true })
	fallback := func(a model.Article) float64 {
		return r.fallbackScore(a, theme, now, defaults[a.SourceFeedURL])
	}

	llmScores, err := r.llmScores(ctx, articles, theme, locale)
	if err != nil {
		logger.Debug("Importance scoring using fallback", "err", err)
		metrics.Global.IncrementScoreFallbacks()
	} else if len(llmScores) != len(articles) {
		logger.Warn("Importance score count mismatch", "scores", len(llmScores), "articles", len(articles))
	}

	out := make([]model.ScoredArticle, len(articles))
	for i, a := range articles {
		var score float64
		if i < len(llmScores) {
			score = clampScore(llmScores[i])
		} else {
			score = fallback(a)
		}
		out[i] = model.ScoredArticle{Article: a, ImportanceScore: score}
	}
	return out
}

func (r *Ranker) llmScores(ctx context.Context, articles []model.Article, theme string, locale model.Locale) ([]float64, error) {
	tmpl := scorePromptEN
	if locale == model.LocaleJA {
		tmpl = scorePromptJA
	}
	text, err := llm.Call(ctx, r.LLM, r.ScoreTimeout, llm.Request{
		Model:       r.Model,
		Prompt:      fmt.Sprintf(tmpl, theme, articleList(articles), len(articles)),
		MaxTokens:   1024,
		Temperature: llm.Temperature(0.2),
	})
	if err != nil {
		return nil, err
	}
	return llm.Chain(text, fieldStages("scores", true)...)
}

// fallbackScore is recency (up to 20) plus theme keyword overlap (up to 20),
// less a small penalty for curated default feeds, plus ImageBonus and a
// random jitter in [0, MaxJitter).
func (r *Ranker) fallbackScore(a model.Article, theme string, now time.Time, fromDefaultFeed bool) float64 {
	base := recencyScore(a.PublicationDate, now) + keywordScore(a, theme)
	if fromDefaultFeed {
		base = math.Max(0, base-defaultFeedPenalty)
	}
	if a.HasImage() {
		base += ImageBonus
	}
	return clampScore(base + r.Rand.Float64()*MaxJitter)
}

func recencyScore(published, now time.Time) float64 {
	age := now.Sub(published)
	if age < 0 {
		age = 0
	}
	if age >= recencyHorizon {
		return 0
	}
	return maxRecencyScore * (1 - float64(age)/float64(recencyHorizon))
}

func keywordScore(a model.Article, theme string) float64 {
	keywords := textutil.Keywords(theme)
	if len(keywords) == 0 {
		return 0
	}
	matches := textutil.CountMatches(a.Title+" "+a.Description, keywords)
	return maxKeywordScore * math.Min(1, float64(matches)/float64(len(keywords)))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
