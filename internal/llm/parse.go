package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrParse = errors.New("llm: unparseable response")

// ParseErrorKind says why a parse stage rejected a response.
type ParseErrorKind string

const (
	ParseEmpty        ParseErrorKind = "empty"
	ParseNotJSON      ParseErrorKind = "not_json"
	ParseMissingField ParseErrorKind = "missing_field"
	ParseWrongType    ParseErrorKind = "wrong_type"
	ParseNoMatch      ParseErrorKind = "no_match"
)

// Result is the tagged outcome of one parse stage.
type Result[T any] struct {
	OK     bool
	Value  T
	Reason ParseErrorKind
}

func Ok[T any](v T) Result[T] {
	return Result[T]{OK: true, Value: v}
}

func Fail[T any](reason ParseErrorKind) Result[T] {
	return Result[T]{Reason: reason}
}

type Stage[T any] struct {
	Name  string
	Parse func(text string) Result[T]
}

// Chain runs stages in order and returns the first successful value.
func Chain[T any](text string, stages ...Stage[T]) (T, error) {
	var zero T
	if strings.TrimSpace(text) == "" {
		return zero, fmt.Errorf("%w: %s", ErrParse, ParseEmpty)
	}

	reasons := make([]string, 0, len(stages))
	for _, st := range stages {
		res := st.Parse(text)
		if res.OK {
			return res.Value, nil
		}
		reasons = append(reasons, st.Name+"="+string(res.Reason))
	}
	return zero, fmt.Errorf("%w: %s", ErrParse, strings.Join(reasons, ", "))
}

var (
	fenceRE         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)
	smartQuotes     = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// StripFences returns the body of the first fenced code block, or s unchanged.
func StripFences(s string) string {
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// CleanJSON removes fences, smart quotes and trailing commas.
func CleanJSON(s string) string {
	s = StripFences(s)
	s = smartQuotes.Replace(s)
	s = trailingCommaRE.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// ExtractObject returns the first balanced {...} in s.
func ExtractObject(s string) (string, bool) {
	return extractBalanced(s, '{', '}')
}

// ExtractArray returns the first balanced [...] in s.
func ExtractArray(s string) (string, bool) {
	return extractBalanced(s, '[', ']')
}

func extractBalanced(s string, openCh, closeCh byte) (string, bool) {
	start := strings.IndexByte(s, openCh)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
