package memindex

import (
	"strings"
	"unicode"
)

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// tokenOverlap is |query ∩ chunk| / |query|.
func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	var hit int
	for tok := range query {
		if _, ok := chunk[tok]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(query))
}
