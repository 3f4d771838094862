package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/model"
)

func TestSanitizeAIText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"inline parenthesized note", "Ministry issues warning\n(Note: This is a machine translation and may contain errors.) Protests continue.", "Ministry issues warning Protests continue."},
		{"full line note", "Note: machine translation.\nProtests continue in Marrakesh", "Protests continue in Marrakesh"},
		{"bracketed", "[Note: Machine translation] 東京で新しい展示会", "東京で新しい展示会"},
		{"label and quotes", `Translation: "Tokyo opens new museum"`, "Tokyo opens new museum"},
		{"japanese brackets", "「新型ロケットの打ち上げに成功」", "新型ロケットの打ち上げに成功"},
		{"plain", "  Markets   rally  ", "Markets rally"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeAIText(tt.in))
		})
	}
}

func articles() ([]model.ScoredArticle, map[string]string) {
	list := []model.ScoredArticle{
		{Article: model.Article{Title: "新型ロケット打ち上げ", SourceFeedURL: "https://ja.example.com/rss"}},
		{Article: model.Article{Title: "Local news", SourceFeedURL: "https://en.example.com/rss"}},
		{Article: model.Article{Title: "Unknown language", SourceFeedURL: "https://x.example.com/rss"}},
		{Article: model.Article{Title: "量子コンピュータの進展", SourceFeedURL: "https://ja.example.com/rss"}},
	}
	langs := map[string]string{"https://ja.example.com/rss": "ja", "https://en.example.com/rss": "en"}
	return list, langs
}

func TestTranslateHeadlines(t *testing.T) {
	var prompt string
	inv := llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		prompt = req.Prompt
		return "```json\n{\"titles\": [\"New rocket launched\", \"(Note: machine translation) Progress in quantum computing\"]}\n```", nil
	})
	in, langs := articles()

	out := New(inv, "fast").TranslateHeadlines(context.Background(), in, langs, model.LocaleEN)
	require.Len(t, out, 4)
	assert.Equal(t, "New rocket launched", out[0].TranslatedTitle)
	assert.Empty(t, out[1].TranslatedTitle)
	assert.Empty(t, out[2].TranslatedTitle)
	assert.Equal(t, "Progress in quantum computing", out[3].TranslatedTitle)
	assert.Empty(t, in[0].TranslatedTitle, "input must not be modified")

	assert.Contains(t, prompt, "into English")
	assert.Contains(t, prompt, "exactly 2 strings")
	assert.Contains(t, prompt, "1. 新型ロケット打ち上げ")
	assert.NotContains(t, prompt, "Local news")
}

func TestTranslateHeadlinesBareArray(t *testing.T) {
	inv := llm.Func(func(context.Context, llm.Request) (string, error) {
		return `Sure: ["New rocket launched", "Quantum progress"]`, nil
	})
	in, langs := articles()
	out := New(inv, "fast").TranslateHeadlines(context.Background(), in, langs, model.LocaleEN)
	assert.Equal(t, "Quantum progress", out[3].TranslatedTitle)
}

func TestTranslateHeadlinesFailures(t *testing.T) {
	in, langs := articles()
	cases := map[string]llm.Invoker{
		"offline":     llm.Offline{},
		"error":       llm.Func(func(context.Context, llm.Request) (string, error) { return "", errors.New("boom") }),
		"wrong count": llm.Func(func(context.Context, llm.Request) (string, error) { return `{"titles":["only one"]}`, nil }),
		"garbage":     llm.Func(func(context.Context, llm.Request) (string, error) { return "no idea", nil }),
	}
	for name, inv := range cases {
		t.Run(name, func(t *testing.T) {
			out := New(inv, "fast").TranslateHeadlines(context.Background(), in, langs, model.LocaleEN)
			for _, a := range out {
				assert.Empty(t, a.TranslatedTitle)
			}
		})
	}
}

func TestTranslateHeadlinesNothingToDo(t *testing.T) {
	var calls int
	inv := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls++
		return "", nil
	})
	in, langs := articles()
	out := New(inv, "fast").TranslateHeadlines(context.Background(), in[1:3], langs, model.LocaleEN)
	assert.Len(t, out, 2)
	assert.Zero(t, calls)
}
