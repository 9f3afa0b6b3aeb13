package bm25

import (
	"strings"
	"unicode"
)

const (
	hangulFirst = '가'
	hangulLast  = '힣'
)

// Tokenize lowercases text, turns punctuation into separators and splits on
// whitespace. Tokens containing Hangul syllables are followed by each of
// their runes as extra tokens: without a morphological analyzer this is what
// lets "로미오는" match a query for "로미오".
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)

	fields := strings.Fields(strings.ToLower(cleaned))
	out := make([]string, 0, len(fields))
	for _, token := range fields {
		out = append(out, token)
		runes := []rune(token)
		if len(runes) > 1 && containsHangul(runes) {
			for _, r := range runes {
				out = append(out, string(r))
			}
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

func containsHangul(runes []rune) bool {
	for _, r := range runes {
		if r >= hangulFirst && r <= hangulLast {
			return true
		}
	}
	return false
}
