// Package textprep turns extracted PDF text into the token sequences the text
// classifiers consume.
package textprep

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minTokenRunes = 2
	maxTokenRunes = 40
)

// ExtractTokens lowercases raw text and splits it on anything that is not a letter or
// digit. Very short, very long and purely numeric tokens are dropped.
func ExtractTokens(raw string) []string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		n := utf8.RuneCountInString(f)
		if n < minTokenRunes || n > maxTokenRunes {
			continue
		}
		if isNumber(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TrimTokens returns at most the first n tokens.
func TrimTokens(tokens []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(tokens) <= n {
		return tokens
	}
	return tokens[:n]
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
