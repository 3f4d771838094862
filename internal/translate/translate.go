// Package translate renders headlines from foreign-language feeds in the
// newspaper's language.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/model"
)

const DefaultTimeout = 10 * time.Second

var languageNames = map[model.Locale]string{
	model.LocaleEN: "English",
	model.LocaleJA: "Japanese",
}

const headlinePrompt = `Translate each news headline below into %s. Keep names and numbers as they are.
Return JSON only: {"titles": ["...", "..."]} with exactly %d strings in the same order.

%s`

// Translator fills ScoredArticle.TranslatedTitle for articles whose feed
// language differs from the newspaper locale.
type Translator struct {
	LLM     llm.Invoker
	Model   string
	Timeout time.Duration
}

func New(inv llm.Invoker, modelID string) *Translator {
	return &Translator{LLM: inv, Model: modelID, Timeout: DefaultTimeout}
}

// TranslateHeadlines returns a copy of articles with translated titles where
// needed. Any failure leaves the titles untranslated.
func (t *Translator) TranslateHeadlines(ctx context.Context, articles []model.ScoredArticle, feedLanguages map[string]string, locale model.Locale) []model.ScoredArticle {
	out := append([]model.ScoredArticle(nil), articles...)

	var pending []int
	for i, a := range out {
		lang := feedLanguages[a.SourceFeedURL]
		if lang != "" && lang != string(locale) {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return out
	}

	var list strings.Builder
	for n, i := range pending {
		fmt.Fprintf(&list, "%d. %s\n", n+1, out[i].Title)
	}
	text, err := llm.Call(ctx, t.LLM, t.Timeout, llm.Request{
		Model:       t.Model,
		Prompt:      fmt.Sprintf(headlinePrompt, languageNames[locale], len(pending), list.String()),
		MaxTokens:   64 * len(pending),
		Temperature: llm.Temperature(0.2),
	})
	if err != nil {
		logger.Debug("Headline translation skipped", "articles", len(pending), "err", err)
		return out
	}

	titles, err := parseTitles(text)
	if err != nil || len(titles) != len(pending) {
		logger.Warn("Headline translation unusable", "want", len(pending), "got", len(titles), "err", err)
		return out
	}
	for n, i := range pending {
		if tr := SanitizeAIText(titles[n]); tr != "" && tr != out[i].Title {
			out[i].TranslatedTitle = tr
		}
	}
	logger.Info("Headlines translated", "count", len(pending), "locale", locale)
	return out
}

func parseTitles(text string) ([]string, error) {
	decode := func(s string) llm.Result[[]string] {
		var v struct {
			Titles []string `json:"titles"`
		}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return llm.Fail[[]string](llm.ParseNotJSON)
		}
		if v.Titles == nil {
			return llm.Fail[[]string](llm.ParseMissingField)
		}
		return llm.Ok(v.Titles)
	}

	return llm.Chain(text,
		llm.Stage[[]string]{Name: "strict", Parse: func(s string) llm.Result[[]string] {
			return decode(llm.StripFences(s))
		}},
		llm.Stage[[]string]{Name: "cleaned", Parse: func(s string) llm.Result[[]string] {
			obj, ok := llm.ExtractObject(llm.CleanJSON(s))
			if !ok {
				return llm.Fail[[]string](llm.ParseNoMatch)
			}
			return decode(obj)
		}},
		llm.Stage[[]string]{Name: "array", Parse: func(s string) llm.Result[[]string] {
			arr, ok := llm.ExtractArray(llm.CleanJSON(s))
			if !ok {
				return llm.Fail[[]string](llm.ParseNoMatch)
			}
			var titles []string
			if err := json.Unmarshal([]byte(arr), &titles); err != nil {
				return llm.Fail[[]string](llm.ParseWrongType)
			}
			return llm.Ok(titles)
		}},
	)
}

var (
	disclaimerRE = regexp.MustCompile(`(?i)[(\[]\s*(note|translation|translated|disclaimer)\b[^)\]]*[)\]]`)
	noteLineRE   = regexp.MustCompile(`(?i)^\s*(note|disclaimer)\s*:`)
	labelRE      = regexp.MustCompile(`(?i)^\s*(translation|translated title|title)\s*:\s*`)
)

// SanitizeAIText strips the disclaimers and labels models add around a
// translation and collapses it to a single line.
func SanitizeAIText(s string) string {
	s = disclaimerRE.ReplaceAllString(s, "")
	lines := lo.Filter(strings.Split(s, "\n"), func(line string, _ int) bool {
		return strings.TrimSpace(line) != "" && !noteLineRE.MatchString(line)
	})
	s = strings.Join(lo.Map(lines, func(line string, _ int) string { return strings.TrimSpace(line) }), " ")
	s = labelRE.ReplaceAllString(s, "")
	s = strings.Trim(strings.TrimSpace(s), `"“”「」`)
	return strings.Join(strings.Fields(s), " ")
}
