// Package tokenizer splits text into approximate model tokens.
//
// A token is a run of letters, digits and combining marks (at most
// MaxRunRunes long), or any single other non-space rune. Whitespace is never
// part of a token. Counts track word-piece tokenizers closely enough for
// budgeting chunks and prompts, and every span is a byte range into the
// original string so callers can cut text without losing bytes.
package tokenizer

import (
	"unicode"
	"unicode/utf8"
)

// MaxRunRunes caps the length of a single word token. Longer runs (URLs,
// identifiers, unbroken scripts) are split so they can still be hard-cut.
const MaxRunRunes = 16

// Span is the byte range [Start, End) of one token.
type Span struct {
	Start int
	End   int
}

// Len returns the byte length of the span.
func (s Span) Len() int {
	return s.End - s.Start
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// Tokenize returns the token spans of text in order.
func Tokenize(text string) []Span {
	spans := make([]Span, 0, len(text)/4+1)
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case isWordRune(r):
			start := i
			runes := 0
			for i < len(text) && runes < MaxRunRunes {
				r, size = utf8.DecodeRuneInString(text[i:])
				if !isWordRune(r) {
					break
				}
				i += size
				runes++
			}
			spans = append(spans, Span{Start: start, End: i})
		default:
			spans = append(spans, Span{Start: i, End: i + size})
			i += size
		}
	}
	return spans
}

// Count returns the number of tokens in text.
func Count(text string) int {
	n := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case isWordRune(r):
			runes := 0
			for i < len(text) && runes < MaxRunRunes {
				r, size = utf8.DecodeRuneInString(text[i:])
				if !isWordRune(r) {
					break
				}
				i += size
				runes++
			}
			n++
		default:
			i += size
			n++
		}
	}
	return n
}

// Truncate returns the longest prefix of text holding at most maxTokens
// tokens, cut at the end of the last kept token.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	spans := Tokenize(text)
	if len(spans) <= maxTokens {
		return text
	}
	return text[:spans[maxTokens-1].End]
}
