// Package tokenize implements the canonical text tokenizer shared by the
// indexer and the ranking service.
//
// A token is a maximal run of ASCII alphanumerics, case-folded to lower
// case. Tokens shorter than MinTokenLength are discarded. Document length
// (the BM25 |D|) is the token count before any deduplication.
package tokenize

import "strings"

// MinTokenLength is the shortest token kept by the pipeline.
const MinTokenLength = 3

// Tokens splits text into normalized tokens in document order.
func Tokens(text string) []string {
	var tokens []string
	start := -1

	flush := func(end int) {
		if start >= 0 && end-start >= MinTokenLength {
			tokens = append(tokens, strings.ToLower(text[start:end]))
		}
		start = -1
	}

	for i := 0; i < len(text); i++ {
		if isAlnum(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))

	return tokens
}

// TermFrequencies counts occurrences per unique token.
func TermFrequencies(tokens []string) map[string]int {
	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}
	return freqs
}

// QueryTerms normalizes a raw search query: case-fold, strip everything
// that is not alphanumeric or whitespace, split on whitespace, then drop
// stop words and tokens shorter than MinTokenLength.
//
// Stripping (rather than splitting on) punctuation means "don't" becomes
// "dont", matching how users type compacted queries; document tokenization
// splits instead.
func QueryTerms(query string) []string {
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
		case isAlnum(c) || c == ' ' || c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(c)
		}
	}

	fields := strings.Fields(b.String())
	terms := fields[:0]
	for _, f := range fields {
		if len(f) < MinTokenLength {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// stopwords are high-frequency English terms excluded from queries. The
// document index keeps them; filtering only at query time keeps indexing
// reversible.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {},
	"not": {}, "you": {}, "all": {}, "any": {}, "can": {},
	"had": {}, "her": {}, "was": {}, "one": {}, "our": {},
	"out": {}, "has": {}, "have": {}, "this": {}, "that": {},
	"with": {}, "they": {}, "from": {}, "were": {}, "been": {},
	"their": {}, "which": {}, "about": {}, "would": {}, "there": {},
}
