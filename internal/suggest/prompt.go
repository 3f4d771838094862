package suggest

import (
	"context"
	"fmt"

	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/model"
)

const systemPrompt = `You recommend RSS and Atom feeds for personalised newspapers. Only suggest feeds you are confident exist and are publicly reachable. Answer with JSON only.`

const promptEN = `Suggest up to %d RSS or Atom feed URLs for a newspaper about "%s", and a short newspaper name.
Prefer established publishers with frequently updated feeds.
Respond in this exact JSON shape:
{"newspaperName": "...", "feeds": [{"url": "https://...", "title": "...", "reasoning": "..."}]}`

const promptJA = `「%[2]s」をテーマにした新聞のために、RSSまたはAtomフィードのURLを最大%[1]d件と、短い新聞名を提案してください。
更新頻度の高い信頼できる発行元を優先してください。日本語のフィードを中心に選んでください。
次のJSON形式のみで回答してください:
{"newspaperName": "...", "feeds": [{"url": "https://...", "title": "...", "reasoning": "..."}]}`

func (e *Engine) askLLM(ctx context.Context, theme string, locale model.Locale) (llmResponse, error) {
	tmpl := promptEN
	if locale == model.LocaleJA {
		tmpl = promptJA
	}
	text, err := llm.Call(ctx, e.LLM, e.LLMTimeout, llm.Request{
		Model:       e.Model,
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(tmpl, MaxLLMCandidates, theme),
		MaxTokens:   2048,
		Temperature: llm.Temperature(0.4),
	})
	if err != nil {
		return llmResponse{}, err
	}
	return parseResponse(text)
}
