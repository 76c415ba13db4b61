package tenderanalysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrNoKeywords = errors.New("no keywords in response")

var (
	quotedTokenRe = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	alphaRunRe    = regexp.MustCompile(`[a-z]{4,}`)
)

var keywordStopWords = map[string]struct{}{
	"and": {}, "or": {}, "the": {}, "of": {}, "to": {}, "in": {}, "for": {}, "with": {},
	"by": {}, "from": {}, "on": {}, "at": {}, "is": {}, "are": {}, "this": {}, "that": {},
	"will": {},
}

func BuildKeywordPrompt(title, description string) string {
	return fmt.Sprintf(`Return valid JSON only. No markdown fences, no commentary.

Extract 8 to 12 short search keywords for finding similar historical government
procurement awards. Prefer service or product categories and domain terms a
procurement officer would use. Avoid generic words.

Title: %s
Description: %s

Respond with a JSON array of strings, e.g. ["software development", "web portal"].`, title, description)
}

// ParseKeywordResponse reads a JSON string list from a free-text reply. When no
// list decodes it falls back to every double-quoted token in the reply. A reply
// with neither fails with both ErrNoKeywords and ErrNoJSONArray.
func ParseKeywordResponse(raw string) ([]string, error) {
	clean := stripCodeFences(raw)
	var list []string
	span, hasArray := firstBalancedSpan(clean, '[', ']')
	if hasArray {
		if err := json.Unmarshal([]byte(span), &list); err != nil {
			list = nil
		}
	}
	if len(list) == 0 {
		list = quotedTokens(clean)
	}
	out := capKeywords(list, MaxKeywords)
	if len(out) == 0 {
		if !hasArray {
			return nil, fmt.Errorf("%w: %w", ErrNoKeywords, ErrNoJSONArray)
		}
		return nil, ErrNoKeywords
	}
	return out, nil
}

func quotedTokens(s string) []string {
	var out []string
	for _, m := range quotedTokenRe.FindAllStringSubmatch(s, -1) {
		var tok string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &tok); err != nil {
			tok = m[1]
		}
		out = append(out, tok)
	}
	return out
}

func capKeywords(list []string, limit int) []string {
	out := make([]string, 0, len(list))
	seen := map[string]struct{}{}
	for _, kw := range list {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == limit {
			break
		}
	}
	return out
}

// FallbackKeywords is the deterministic extractor used when the generator is
// unavailable: lower-cased alphabetic runs of four or more letters, stop words
// removed, first occurrence order.
func FallbackKeywords(text string, limit int) []string {
	if limit <= 0 {
		limit = FallbackKeywordLimit
	}
	out := []string{}
	seen := map[string]struct{}{}
	for _, tok := range alphaRunRe.FindAllString(strings.ToLower(text), -1) {
		if _, stop := keywordStopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == limit {
			break
		}
	}
	return out
}
