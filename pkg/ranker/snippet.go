package ranker

import (
	"strings"
	"unicode/utf8"
)

// snippetMaxLen bounds the visible snippet length in runes; highlight tags
// do not count against it.
const snippetMaxLen = 160

// buildSnippet returns the span of text, at most snippetMaxLen runes,
// containing the most query term occurrences, with each occurrence wrapped
// in <b> tags. Terms must already be normalized to lowercase. Empty text
// returns an empty snippet; text without any match returns its head.
func buildSnippet(text string, terms []string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	termSet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		termSet[t] = struct{}{}
	}

	widths := make([]int, len(words))
	matched := make([]bool, len(words))
	for i, w := range words {
		widths[i] = utf8.RuneCountInString(w)
		matched[i] = wordMatches(w, termSet)
	}

	// Slide a window over the words, keeping the rendered length within
	// the cap. The window with the most matches wins; on ties the earlier
	// window wins, extended as far as the cap allows.
	bestStart, bestEnd, bestCount := 0, 0, -1
	start, width, count := 0, 0, 0
	for end := 0; end < len(words); end++ {
		width += widths[end]
		if end > start {
			width++ // joining space
		}
		if matched[end] {
			count++
		}
		for width > snippetMaxLen && start < end {
			width -= widths[start] + 1
			if matched[start] {
				count--
			}
			start++
		}
		if count > bestCount {
			bestStart, bestEnd, bestCount = start, end, count
		} else if count == bestCount && start == bestStart {
			bestEnd = end
		}
	}

	// A single word can exceed the cap on its own; cut it rather than
	// overflow, skipping highlights since tags could be severed.
	if bestStart == bestEnd && widths[bestStart] > snippetMaxLen {
		runes := []rune(words[bestStart])
		return string(runes[:snippetMaxLen])
	}

	var sb strings.Builder
	for i := bestStart; i <= bestEnd; i++ {
		if i > bestStart {
			sb.WriteByte(' ')
		}
		if matched[i] {
			sb.WriteString(highlightWord(words[i], termSet))
		} else {
			sb.WriteString(words[i])
		}
	}
	return sb.String()
}

// wordMatches reports whether any alphanumeric run in w equals a term.
func wordMatches(w string, termSet map[string]struct{}) bool {
	found := false
	alnumRuns(w, func(lo, hi int) {
		if found {
			return
		}
		if _, ok := termSet[strings.ToLower(w[lo:hi])]; ok {
			found = true
		}
	})
	return found
}

// highlightWord wraps every matching alphanumeric run in <b> tags, leaving
// surrounding punctuation outside the tags.
func highlightWord(w string, termSet map[string]struct{}) string {
	var sb strings.Builder
	last := 0
	alnumRuns(w, func(lo, hi int) {
		run := w[lo:hi]
		if _, ok := termSet[strings.ToLower(run)]; !ok {
			return
		}
		sb.WriteString(w[last:lo])
		sb.WriteString("<b>")
		sb.WriteString(run)
		sb.WriteString("</b>")
		last = hi
	})
	sb.WriteString(w[last:])
	return sb.String()
}

// alnumRuns calls fn with the byte bounds of each maximal ASCII
// alphanumeric run in w, mirroring how the tokenizer splits terms.
func alnumRuns(w string, fn func(lo, hi int)) {
	lo := -1
	for i := 0; i < len(w); i++ {
		c := w[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			if lo < 0 {
				lo = i
			}
			continue
		}
		if lo >= 0 {
			fn(lo, i)
			lo = -1
		}
	}
	if lo >= 0 {
		fn(lo, len(w))
	}
}
