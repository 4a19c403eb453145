package ranker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

// visibleLen counts snippet runes excluding highlight tags.
func visibleLen(s string) int {
	r := strings.NewReplacer("<b>", "", "</b>", "")
	return utf8.RuneCountInString(r.Replace(s))
}

func TestBuildSnippet_Empty(t *testing.T) {
	assert.Equal(t, "", buildSnippet("", []string{"gopher"}))
	assert.Equal(t, "", buildSnippet("  \n\t  ", []string{"gopher"}))
}

func TestBuildSnippet_HighlightsMatches(t *testing.T) {
	got := buildSnippet("The gopher digs tunnels.", []string{"gopher", "tunnels"})
	assert.Equal(t, "The <b>gopher</b> digs <b>tunnels</b>.", got)
}

func TestBuildSnippet_CaseInsensitiveExactTerm(t *testing.T) {
	got := buildSnippet("Gopher GOPHER gophers", []string{"gopher"})
	// Exact term match only; "gophers" is a different token.
	assert.Equal(t, "<b>Gopher</b> <b>GOPHER</b> gophers", got)
}

func TestBuildSnippet_PunctuationStaysOutsideTags(t *testing.T) {
	got := buildSnippet(`"gopher," he said (gopher!)`, []string{"gopher"})
	assert.Equal(t, `"<b>gopher</b>," he said (<b>gopher</b>!)`, got)

	got = buildSnippet("a gopher-sized hole", []string{"gopher"})
	assert.Equal(t, "a <b>gopher</b>-sized hole", got)
}

func TestBuildSnippet_NoMatchReturnsHead(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 20))
	got := buildSnippet(text, []string{"zulu"})

	assert.True(t, strings.HasPrefix(got, "alpha beta gamma delta"))
	assert.NotContains(t, got, "<b>")
	assert.LessOrEqual(t, visibleLen(got), snippetMaxLen)
	assert.Greater(t, visibleLen(got), 100) // fills the window, not one word
}

func TestBuildSnippet_PicksDensestWindow(t *testing.T) {
	text := strings.Repeat("filler words only here ", 30) +
		"gopher colonies gopher burrows gopher tunnels" +
		strings.Repeat(" trailing padding text", 30)

	got := buildSnippet(text, []string{"gopher"})

	// All three occurrences fit inside one window, so the best window
	// must hold all of them.
	assert.Equal(t, 3, strings.Count(got, "<b>gopher</b>"))
	assert.LessOrEqual(t, visibleLen(got), snippetMaxLen)
}

func TestBuildSnippet_WindowRespectsCap(t *testing.T) {
	// Matches spread too far apart to share a window.
	text := "gopher " + strings.Repeat("pad ", 100) + "gopher"
	got := buildSnippet(text, []string{"gopher"})

	assert.Equal(t, 1, strings.Count(got, "<b>gopher</b>"))
	assert.LessOrEqual(t, visibleLen(got), snippetMaxLen)
}

func TestBuildSnippet_OversizedWordTruncated(t *testing.T) {
	got := buildSnippet(strings.Repeat("x", 300), []string{"gopher"})
	assert.Equal(t, snippetMaxLen, utf8.RuneCountInString(got))
}
