// Package news ranks fetched articles: theme filtering, importance scoring and
// the final selection and ordering for the newspaper layout.
package news

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/textutil"
)

const (
	DefaultFilterTimeout = 5 * time.Second
	DefaultScoreTimeout  = 8 * time.Second

	// snippetLength bounds each article description inside a prompt.
	snippetLength = 120
)

// Ranker runs the filter, scorer and selector. A nil or offline LLM makes the
// filter a no-op and the scorer use its algorithmic formula.
type Ranker struct {
	LLM           llm.Invoker
	Model         string
	FilterTimeout time.Duration
	ScoreTimeout  time.Duration
	Rand          Rand

	now func() time.Time
}

func NewRanker(inv llm.Invoker, modelID string, rnd Rand) *Ranker {
	if rnd == nil {
		rnd = defaultRand()
	}
	return &Ranker{
		LLM:           inv,
		Model:         modelID,
		FilterTimeout: DefaultFilterTimeout,
		ScoreTimeout:  DefaultScoreTimeout,
		Rand:          rnd,
		now:           time.Now,
	}
}

// articleList renders articles as numbered prompt lines.
func articleList(articles []model.Article) string {
	var b strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&b, "[%d] %s", i, a.Title)
		if d := textutil.Truncate(a.Description, snippetLength); d != "" {
			fmt.Fprintf(&b, " | %s", d)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// numberArray decodes a JSON array of numbers. Non-numeric entries fail the
// whole array.
func numberArray(raw any) ([]float64, bool) {
	items, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case float64:
			out = append(out, v)
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		default:
			return nil, false
		}
	}
	return out, true
}

// fieldStages builds the staged parser for a response of the form
// {"<field>": [numbers]}: strict object, cleaned and extracted object, then,
// when bareArray is set, a bare array anywhere in the text.
func fieldStages(field string, bareArray bool) []llm.Stage[[]float64] {
	fromObject := func(s string) llm.Result[[]float64] {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return llm.Fail[[]float64](llm.ParseNotJSON)
		}
		raw, ok := obj[field]
		if !ok {
			return llm.Fail[[]float64](llm.ParseMissingField)
		}
		nums, ok := numberArray(raw)
		if !ok {
			return llm.Fail[[]float64](llm.ParseWrongType)
		}
		return llm.Ok(nums)
	}

	stages := []llm.Stage[[]float64]{
		{Name: "strict", Parse: func(text string) llm.Result[[]float64] {
			return fromObject(strings.TrimSpace(llm.StripFences(text)))
		}},
		{Name: "cleaned", Parse: func(text string) llm.Result[[]float64] {
			obj, ok := llm.ExtractObject(llm.CleanJSON(text))
			if !ok {
				return llm.Fail[[]float64](llm.ParseNoMatch)
			}
			return fromObject(obj)
		}},
	}
	if !bareArray {
		return stages
	}
	return append(stages, llm.Stage[[]float64]{Name: "array", Parse: func(text string) llm.Result[[]float64] {
		cleaned := llm.CleanJSON(text)
		// An array nested in an object belongs to some other field.
		if obj := strings.IndexByte(cleaned, '{'); obj >= 0 && obj < strings.IndexByte(cleaned, '[') {
			return llm.Fail[[]float64](llm.ParseMissingField)
		}
		arr, ok := llm.ExtractArray(cleaned)
		if !ok {
			return llm.Fail[[]float64](llm.ParseNoMatch)
		}
		var raw any
		if err := json.Unmarshal([]byte(arr), &raw); err != nil {
			return llm.Fail[[]float64](llm.ParseNotJSON)
		}
		nums, ok := numberArray(raw)
		if !ok {
			return llm.Fail[[]float64](llm.ParseWrongType)
		}
		return llm.Ok(nums)
	}})
}
