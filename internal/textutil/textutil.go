// Package textutil holds the HTML and keyword helpers shared by the feed
// fetcher, the scorer and the catalog matcher.
package textutil

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// FirstImageSrc returns the src of the first <img> in an HTML fragment.
func FirstImageSrc(html string) string {
	if !strings.Contains(strings.ToLower(html), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var src string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("src")
		v = strings.TrimSpace(v)
		if v == "" || strings.HasPrefix(v, "data:") {
			return true
		}
		src = v
		return false
	})
	return src
}

// Truncate cuts s to at most n runes and appends "..." when anything was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}

var (
	wordREMu sync.Mutex
	wordREs  = map[string]*regexp.Regexp{}
)

func wordRE(k string) *regexp.Regexp {
	wordREMu.Lock()
	defer wordREMu.Unlock()
	re, ok := wordREs[k]
	if !ok {
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		wordREs[k] = re
	}
	return re
}

// ContainsAny reports whether any keyword occurs in text.
func ContainsAny(text string, keywords []string) bool {
	return CountMatches(text, keywords) > 0
}

// CountMatches returns how many of keywords occur in text. Short ASCII words
// are matched on word boundaries so "ai" does not match "said".
func CountMatches(text string, keywords []string) int {
	text = strings.ToLower(text)
	n := 0

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		switch {
		case strings.Contains(k, " "):
			if strings.Contains(text, k) {
				n++
			}
		case len(k) <= 3 && isASCII(k):
			if wordRE(k).MatchString(text) {
				n++
			}
		default:
			if strings.Contains(text, k) {
				n++
			}
		}
	}
	return n
}

// Keywords splits a theme into lowercase search terms. Very short latin
// tokens are dropped; CJK themes have no spaces and are kept whole.
func Keywords(theme string) []string {
	fields := strings.FieldsFunc(strings.ToLower(theme), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if isASCII(f) && len(f) < 2 {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
