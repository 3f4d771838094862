package newspaper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/retry"
	"github.com/deusflow/newspaper/internal/textutil"
)

const DefaultSummaryTimeout = 10 * time.Second

const summaryPromptEN = `You are the editor of a newspaper about "%s". Write a 3-4 sentence overview of today's edition based on these articles. Plain text only.

%s`

const summaryPromptJA = `あなたは「%s」をテーマにした新聞の編集者です。以下の記事をもとに、今日の紙面の概要を3〜4文で書いてください。プレーンテキストのみ。

%s`

const editorialPromptEN = `You are the columnist of a newspaper about "%s". Write a short editorial column (about 150 words) reflecting on the trends in these articles. Plain text only.

%s`

const editorialPromptJA = `あなたは「%s」をテーマにした新聞のコラムニストです。以下の記事の傾向について、300字程度の短い社説コラムを書いてください。プレーンテキストのみ。

%s`

// Writer produces the summary and editorial text, retrying transient LLM
// failures and falling back to text assembled from the headlines.
type Writer struct {
	LLM     llm.Invoker
	Model   string
	Timeout time.Duration
	Retry   retry.RetryConfig
}

func (w *Writer) Summary(ctx context.Context, theme string, locale model.Locale, articles []model.ScoredArticle) string {
	tmpl := summaryPromptEN
	if locale == model.LocaleJA {
		tmpl = summaryPromptJA
	}
	text, err := w.write(ctx, fmt.Sprintf(tmpl, theme, headlines(articles)), 512)
	if err != nil {
		logger.Debug("Summary using fallback", "err", err)
		return fallbackSummary(theme, locale, articles)
	}
	return text
}

func (w *Writer) Editorial(ctx context.Context, theme string, locale model.Locale, articles []model.ScoredArticle) string {
	tmpl := editorialPromptEN
	if locale == model.LocaleJA {
		tmpl = editorialPromptJA
	}
	text, err := w.write(ctx, fmt.Sprintf(tmpl, theme, headlines(articles)), 768)
	if err != nil {
		logger.Debug("Editorial using fallback", "err", err)
		return fallbackEditorial(theme, locale, articles)
	}
	return text
}

func (w *Writer) write(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var text string
	err := retry.WithRetry(ctx, w.Retry, func(attempt int) error {
		out, err := llm.Call(ctx, w.LLM, w.Timeout, llm.Request{
			Model:       w.Model,
			Prompt:      prompt,
			MaxTokens:   maxTokens,
			Temperature: llm.Temperature(0.7),
		})
		switch {
		case err == nil:
			text = strings.TrimSpace(out)
			return nil
		case errors.Is(err, llm.ErrOffline), errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrEmptyResponse):
			return retry.Permanent(err)
		default:
			logger.Debug("LLM write attempt failed", "attempt", attempt, "err", err)
			return err
		}
	})
	return text, err
}

func headlines(articles []model.ScoredArticle) string {
	var b strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. %s", i+1, a.Title)
		if a.Description != "" {
			fmt.Fprintf(&b, ": %s", textutil.Truncate(a.Description, 150))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func titles(articles []model.ScoredArticle, n int) []string {
	out := make([]string, 0, n)
	for _, a := range articles {
		if len(out) == n {
			break
		}
		out = append(out, a.Title)
	}
	return out
}

func fallbackSummary(theme string, locale model.Locale, articles []model.ScoredArticle) string {
	if locale == model.LocaleJA {
		if len(articles) == 0 {
			return fmt.Sprintf("本日の「%s」に関する記事は見つかりませんでした。", theme)
		}
		s := fmt.Sprintf("本日の「%s」は%d本の記事をお届けします。トップ記事は「%s」です。", theme, len(articles), articles[0].Title)
		if more := titles(articles[1:], 2); len(more) > 0 {
			s += "ほかに「" + strings.Join(more, "」「") + "」などを取り上げています。"
		}
		return s
	}

	if len(articles) == 0 {
		return fmt.Sprintf("No %s stories were found for today's edition.", theme)
	}
	s := fmt.Sprintf("Today's %s edition brings %d stories, led by %q.", theme, len(articles), articles[0].Title)
	if more := titles(articles[1:], 2); len(more) > 0 {
		s += " Also inside: " + strings.Join(more, "; ") + "."
	}
	return s
}

func fallbackEditorial(theme string, locale model.Locale, articles []model.ScoredArticle) string {
	sources := map[string]bool{}
	withImages := 0
	for _, a := range articles {
		sources[a.SourceFeedURL] = true
		if a.HasImage() {
			withImages++
		}
	}

	if locale == model.LocaleJA {
		return fmt.Sprintf("今回の紙面では、%d件の情報源から「%s」に関する%d本の記事を集めました。"+
			"異なる視点の記事を読み比べることで、話題の全体像が見えてきます。", len(sources), theme, len(articles))
	}
	return fmt.Sprintf("This edition gathers %d stories about %s from %d sources, %d of them illustrated. "+
		"Reading them side by side shows how differently each outlet frames the same subject.",
		len(articles), theme, len(sources), withImages)
}
