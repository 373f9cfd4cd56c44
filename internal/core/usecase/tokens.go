package usecase

import (
	"strings"
	"unicode"
)

// QueryTerms is the tokenized form of a query, computed once per request and
// shared across candidate scoring.
type QueryTerms map[string]struct{}

func TermsOf(s string) QueryTerms {
	tokens := splitAlphaNumLower(s)
	out := make(QueryTerms, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func tokenOverlap(query QueryTerms, text string) float64 {
	if len(query) == 0 {
		return 0
	}
	chunkTokens := TermsOf(text)
	if len(chunkTokens) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunkTokens[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || unicode.IsLetter(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
