package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonStage(name string, prep func(string) (string, bool)) Stage[map[string]any] {
	return Stage[map[string]any]{Name: name, Parse: func(text string) Result[map[string]any] {
		body, ok := prep(text)
		if !ok {
			return Fail[map[string]any](ParseNoMatch)
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return Fail[map[string]any](ParseNotJSON)
		}
		return Ok(v)
	}}
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	calls := 0
	strict := jsonStage("strict", func(s string) (string, bool) { calls++; return s, true })
	cleaned := jsonStage("cleaned", func(s string) (string, bool) { calls++; return CleanJSON(s), true })

	v, err := Chain(`{"a":1}`, strict, cleaned)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v["a"])
	assert.Equal(t, 1, calls)

	v, err = Chain("```json\n{\"a\":2,}\n```", strict, cleaned)
	require.NoError(t, err)
	assert.Equal(t, float64(2), v["a"])
}

func TestChainReportsAllReasons(t *testing.T) {
	strict := jsonStage("strict", func(s string) (string, bool) { return s, true })
	object := jsonStage("object", ExtractObject)

	_, err := Chain("no json here", strict, object)
	require.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "strict=not_json")
	assert.Contains(t, err.Error(), "object=no_match")

	_, err = Chain("   ", strict)
	assert.ErrorIs(t, err, ErrParse)
}

func TestExtractBalanced(t *testing.T) {
	obj, ok := ExtractObject(`Sure! Here you go: {"a": "}", "b": {"c": [1,2]}} trailing`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "}", "b": {"c": [1,2]}}`, obj)

	arr, ok := ExtractArray(`"feeds": [{"url": "x"}, {"url": "[y]"}], "name": 1`)
	require.True(t, ok)
	assert.Equal(t, `[{"url": "x"}, {"url": "[y]"}]`, arr)

	_, ok = ExtractObject(`{"unterminated": 1`)
	assert.False(t, ok)
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a": [1, 2]}`, CleanJSON("```\n{“a”: [1, 2,],}\n```"))
}
