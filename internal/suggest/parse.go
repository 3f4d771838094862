package suggest

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/deusflow/newspaper/internal/llm"
)

type llmFeed struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Reasoning string `json:"reasoning"`
}

type llmResponse struct {
	Feeds         []llmFeed `json:"feeds"`
	NewspaperName string    `json:"newspaperName"`
}

var (
	feedsKeyRE = regexp.MustCompile(`"feeds"\s*:`)
	nameRE     = regexp.MustCompile(`"newspaperName"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	objectRE   = regexp.MustCompile(`\{[^{}]*\}`)
	urlFieldRE = regexp.MustCompile(`"url"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	titleRE    = regexp.MustCompile(`"title"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reasonRE   = regexp.MustCompile(`"reasoning"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// parseResponse runs the staged parser: strict JSON, cleaned JSON, the feeds
// array cut out by regex, then field-by-field regex over each object.
func parseResponse(text string) (llmResponse, error) {
	return llm.Chain(text,
		llm.Stage[llmResponse]{Name: "strict", Parse: func(s string) llm.Result[llmResponse] {
			return decodeResponse(llm.StripFences(s))
		}},
		llm.Stage[llmResponse]{Name: "cleaned", Parse: func(s string) llm.Result[llmResponse] {
			obj, ok := llm.ExtractObject(llm.CleanJSON(s))
			if !ok {
				return llm.Fail[llmResponse](llm.ParseNoMatch)
			}
			return decodeResponse(obj)
		}},
		llm.Stage[llmResponse]{Name: "feeds_array", Parse: parseFeedsArray},
		llm.Stage[llmResponse]{Name: "per_object", Parse: parsePerObject},
	)
}

func decodeResponse(s string) llm.Result[llmResponse] {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return llm.Fail[llmResponse](llm.ParseNotJSON)
	}
	feedsRaw, ok := raw["feeds"]
	if !ok {
		return llm.Fail[llmResponse](llm.ParseMissingField)
	}
	var resp llmResponse
	if err := json.Unmarshal(feedsRaw, &resp.Feeds); err != nil {
		return llm.Fail[llmResponse](llm.ParseWrongType)
	}
	if nameRaw, ok := raw["newspaperName"]; ok {
		// A non-string name is ignored rather than failing the feeds.
		_ = json.Unmarshal(nameRaw, &resp.NewspaperName)
	}
	return llm.Ok(resp)
}

func parseFeedsArray(s string) llm.Result[llmResponse] {
	s = llm.CleanJSON(s)
	loc := feedsKeyRE.FindStringIndex(s)
	if loc == nil {
		return llm.Fail[llmResponse](llm.ParseMissingField)
	}
	arr, ok := llm.ExtractArray(s[loc[1]:])
	if !ok {
		return llm.Fail[llmResponse](llm.ParseNoMatch)
	}
	var resp llmResponse
	if err := json.Unmarshal([]byte(arr), &resp.Feeds); err != nil {
		return llm.Fail[llmResponse](llm.ParseWrongType)
	}
	resp.NewspaperName = regexString(nameRE, s)
	return llm.Ok(resp)
}

func parsePerObject(s string) llm.Result[llmResponse] {
	var resp llmResponse
	for _, obj := range objectRE.FindAllString(s, -1) {
		u := regexString(urlFieldRE, obj)
		if u == "" {
			continue
		}
		resp.Feeds = append(resp.Feeds, llmFeed{
			URL:       u,
			Title:     regexString(titleRE, obj),
			Reasoning: regexString(reasonRE, obj),
		})
	}
	if len(resp.Feeds) == 0 {
		return llm.Fail[llmResponse](llm.ParseNoMatch)
	}
	resp.NewspaperName = regexString(nameRE, s)
	return llm.Ok(resp)
}

// regexString returns the first capture group, JSON-unescaped when possible.
func regexString(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &out); err != nil {
		out = m[1]
	}
	return strings.TrimSpace(out)
}
