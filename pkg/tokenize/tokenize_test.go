package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple words",
			text: "hello world hello",
			want: []string{"hello", "world", "hello"},
		},
		{
			name: "case folding",
			text: "Hello WORLD HeLLo",
			want: []string{"hello", "world", "hello"},
		},
		{
			name: "short tokens dropped",
			text: "a an the go is T hello",
			want: []string{"the", "hello"},
		},
		{
			name: "punctuation splits runs",
			text: "don't stop-the presses!",
			want: []string{"don", "stop", "the", "presses"},
		},
		{
			name: "digits kept",
			text: "error 404 code12 7",
			want: []string{"error", "404", "code12"},
		},
		{
			name: "non-ascii splits runs",
			text: "café résumé",
			want: []string{"caf", "sum"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "only separators",
			text: " \t\n ... !!!",
			want: nil,
		},
		{
			name: "token at end of input",
			text: "trailing token",
			want: []string{"trailing", "token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokens(tt.text))
		})
	}
}

func TestTermFrequencies(t *testing.T) {
	freqs := TermFrequencies([]string{"hello", "world", "hello"})

	assert.Equal(t, map[string]int{"hello": 2, "world": 1}, freqs)
}

func TestTermFrequencies_Empty(t *testing.T) {
	assert.Empty(t, TermFrequencies(nil))
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "plain terms",
			query: "quick brown fox",
			want:  []string{"quick", "brown", "fox"},
		},
		{
			name:  "case folded",
			query: "Quick BROWN Fox",
			want:  []string{"quick", "brown", "fox"},
		},
		{
			name:  "punctuation stripped not split",
			query: "don't panic",
			want:  []string{"dont", "panic"},
		},
		{
			name:  "stop words removed",
			query: "the quick and the dead",
			want:  []string{"quick", "dead"},
		},
		{
			name:  "short tokens removed",
			query: "go to mars now",
			want:  []string{"mars", "now"},
		},
		{
			name:  "only noise",
			query: "the a an !!!",
			want:  []string{},
		},
		{
			name:  "empty",
			query: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QueryTerms(tt.query))
		})
	}
}
