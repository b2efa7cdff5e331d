package cluster

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "would": {},
	"should": {}, "will": {}, "what": {}, "why": {}, "how": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "you": {}, "me": {}, "my": {},
	"i": {}, "it": {}, "to": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"with": {}, "about": {}, "explain": {}, "please": {}, "work": {},
	"works": {}, "and": {}, "or": {}, "this": {}, "that": {}, "again": {},
}

const maxNameTokens = 3

// deriveName builds a short human-readable cluster name from a query's
// content words: strip stop-words and punctuation, title-case up to
// three remaining tokens.
func deriveName(queryText string) string {
	fields := strings.FieldsFunc(queryText, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, maxNameTokens)
	for _, f := range fields {
		lower := strings.ToLower(f)
		if _, skip := stopWords[lower]; skip {
			continue
		}
		tokens = append(tokens, titleCase(lower))
		if len(tokens) == maxNameTokens {
			break
		}
	}

	if len(tokens) == 0 {
		return "General"
	}
	return strings.Join(tokens, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
