package tenderanalysis

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoJSONObject = errors.New("no JSON object found")
	ErrNoJSONArray  = errors.New("no JSON array found")

	codeFenceRe = regexp.MustCompile("```[a-zA-Z]*[ \t]*\n?")
)

func stripCodeFences(s string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(strings.TrimSpace(s), ""))
}

// firstBalancedSpan returns the first span opened by open and closed by the
// matching close at depth zero. Brackets inside JSON strings are ignored.
func firstBalancedSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	for start >= 0 {
		if end, ok := matchSpan(s, start, open, close); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchSpan(s string, start int, open, close byte) (int, bool) {
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
