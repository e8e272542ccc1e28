package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \n\t ", nil},
		{"words", "three-year Bachelor's", []string{"three", "-", "year", "Bachelor", "'", "s"}},
		{"sentence", "India. U.S.", []string{"India", ".", "U", ".", "S", "."}},
		{"numbers", "GPA 3.5/4", []string{"GPA", "3", ".", "5", "/", "4"}},
		{"accents", "licenciatura en educación", []string{"licenciatura", "en", "educación"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range Tokenize(tt.text) {
				got = append(got, tt.text[s.Start:s.End])
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), Count(tt.text))
		})
	}
}

func TestTokenize_LongRunsAreSplit(t *testing.T) {
	text := strings.Repeat("a", MaxRunRunes*2+3)

	spans := Tokenize(text)

	require.Len(t, spans, 3)
	assert.Equal(t, MaxRunRunes, spans[0].Len())
	assert.Equal(t, 3, spans[2].Len())
	assert.Equal(t, 3, Count(text))
}

func TestTokenize_SpansAreOrderedAndDisjoint(t *testing.T) {
	text := "Northeastern evaluates a three-year Bachelor's degree from India.\n\nEquivalent!"

	spans := Tokenize(text)
	require.NotEmpty(t, spans)
	for i := 1; i < len(spans); i++ {
		assert.LessOrEqual(t, spans[i-1].End, spans[i].Start)
	}
	assert.Equal(t, len(spans), Count(text))
}

func TestTruncate(t *testing.T) {
	text := "one two three four"

	assert.Equal(t, "", Truncate(text, 0))
	assert.Equal(t, "one", Truncate(text, 1))
	assert.Equal(t, "one two three", Truncate(text, 3))
	assert.Equal(t, text, Truncate(text, 4))
	assert.Equal(t, text, Truncate(text, 40))
	assert.Equal(t, 2, Count(Truncate("a, b, c", 2)))
}
