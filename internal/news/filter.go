package news

import (
	"context"
	"fmt"
	"math"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
	"github.com/deusflow/newspaper/internal/model"
)

// MinFilterResult is the smallest filtered set kept. Below it, and for inputs
// smaller than it, the filter returns the articles unchanged.
const MinFilterResult = 8

const (
	filterPromptEN = `You are an editor selecting articles for a newspaper about "%s".
Below is a numbered list of articles. Choose every article that is relevant to the theme.

%s
Respond with JSON only, in this exact shape: {"relevantIndices": [0, 2, 5]}`

	filterPromptJA = `あなたは「%s」をテーマにした新聞の編集者です。
以下は番号付きの記事一覧です。テーマに関連する記事をすべて選んでください。

%s
次の形式のJSONのみで回答してください: {"relevantIndices": [0, 2, 5]}`
)

func filterPrompt(theme string, locale model.Locale, articles []model.Article) string {
	tmpl := filterPromptEN
	if locale == model.LocaleJA {
		tmpl = filterPromptJA
	}
	return fmt.Sprintf(tmpl, theme, articleList(articles))
}

// FilterByTheme keeps the articles the LLM marks as relevant to theme, in
// their original order. Any failure, or a result under MinFilterResult,
// returns the input unchanged.
func (r *Ranker) FilterByTheme(ctx context.Context, articles []model.Article, theme string, locale model.Locale) []model.Article {
	if len(articles) < MinFilterResult {
		return articles
	}

	text, err := llm.Call(ctx, r.LLM, r.FilterTimeout, llm.Request{
		Model:       r.Model,
		Prompt:      filterPrompt(theme, locale, articles),
		MaxTokens:   1024,
		Temperature: llm.Temperature(0.1),
	})
	if err != nil {
		logger.Debug("Theme filter skipped", "err", err)
		metrics.Global.IncrementFilterFallbacks()
		return articles
	}

	raw, err := llm.Chain(text, fieldStages("relevantIndices", false)...)
	if err != nil {
		logger.Warn("Theme filter response unusable", "err", err)
		metrics.Global.IncrementFilterFallbacks()
		return articles
	}

	keep := validIndices(raw, len(articles))
	if len(keep) < MinFilterResult {
		logger.Info("Theme filter too strict, keeping all articles", "relevant", len(keep), "total", len(articles))
		metrics.Global.IncrementFilterFallbacks()
		return articles
	}

	out := make([]model.Article, 0, len(keep))
	for i, a := range articles {
		if keep[i] {
			out = append(out, a)
		}
	}
	logger.Info("Theme filter applied", "kept", len(out), "total", len(articles))
	return out
}

// validIndices returns the distinct integral indices within [0,n).
func validIndices(raw []float64, n int) map[int]bool {
	keep := make(map[int]bool, len(raw))
	for _, v := range raw {
		if v != math.Trunc(v) || v < 0 || v >= float64(n) {
			continue
		}
		keep[int(v)] = true
	}
	return keep
}
