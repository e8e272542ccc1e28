package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/tokenizer"
)

// Boundary strength between two adjacent tokens.
const (
	boundaryNone = iota
	boundarySentence
	boundaryParagraph
)

// window is one chunk in token space: own tokens are [own, end), the
// overlap prefix is [own-overlap, own).
type window struct {
	own     int
	end     int
	overlap int
}

// Split divides doc.Text into chunks of at most maxTokens tokens.
//
// Cuts prefer paragraph breaks, then sentence or line breaks, then fall back
// to a hard token cut when a single unit is longer than the budget. Each chunk
// after the first repeats up to overlapTokens tokens of its predecessor.
// Concatenating every chunk's OwnText in sequence order yields doc.Text.
func Split(doc *domain.Document, maxTokens, overlapTokens int) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", domain.ErrInvalidInput, maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d",
			domain.ErrInvalidInput, maxTokens, overlapTokens)
	}
	if err := ValidateText(doc.Text); err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}

	text := doc.Text
	spans := tokenizer.Tokenize(text)
	windows := plan(text, spans, maxTokens, overlapTokens)

	chunks := make([]domain.Chunk, len(windows))
	for i, w := range windows {
		ownByteStart := 0
		if i > 0 {
			ownByteStart = spans[w.own].Start
		}
		ownByteEnd := len(text)
		if i+1 < len(windows) {
			ownByteEnd = spans[windows[i+1].own].Start
		}
		prefixByteStart := ownByteStart
		if w.overlap > 0 {
			prefixByteStart = spans[w.own-w.overlap].Start
		}

		chunks[i] = domain.Chunk{
			ID:         domain.ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			Sequence:   i,
			Text:       text[prefixByteStart:ownByteEnd],
			Offset:     ownByteStart,
			OverlapLen: ownByteStart - prefixByteStart,
			TokenCount: w.end - w.own + w.overlap,
			Metadata: map[string]any{
				domain.MetaChunkIndex:  i,
				domain.MetaTotalChunks: len(windows),
			},
		}
	}
	return chunks, nil
}

// ValidateText rejects input that cannot be chunked: blank text, invalid
// UTF-8 and text containing NUL bytes (binary content).
func ValidateText(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return fmt.Errorf("%w: text is empty", domain.ErrInvalidInput)
	case !utf8.ValidString(text):
		return fmt.Errorf("%w: text is not valid UTF-8", domain.ErrInvalidInput)
	case strings.IndexByte(text, 0) >= 0:
		return fmt.Errorf("%w: text contains NUL bytes", domain.ErrInvalidInput)
	}
	return nil
}

// plan lays out chunk windows over the token spans.
func plan(text string, spans []tokenizer.Span, maxTokens, overlapTokens int) []window {
	n := len(spans)
	strength := make([]int, n+1)
	for b := 1; b < n; b++ {
		strength[b] = classify(text, spans[b-1], spans[b])
	}
	strength[n] = boundaryParagraph

	var windows []window
	own, prevOwn := 0, 0
	for own < n {
		overlap := 0
		if len(windows) > 0 {
			overlap = min(overlapTokens, own-prevOwn)
		}

		end, strong := pickEnd(strength, own-overlap, own, maxTokens)
		if !strong && overlap > 0 {
			// Without the prefix the next unit may fit whole.
			if alt, ok := pickEnd(strength, own, own, maxTokens); ok {
				end, overlap = alt, 0
			}
		}

		windows = append(windows, window{own: own, end: end, overlap: overlap})
		prevOwn = own
		own = end
	}
	return windows
}

// pickEnd chooses the cut for a chunk starting at token start whose own
// tokens begin at own. It reports whether the cut falls on a semantic boundary.
func pickEnd(strength []int, start, own, maxTokens int) (int, bool) {
	n := len(strength) - 1
	limit := start + maxTokens
	if limit >= n {
		return n, true
	}

	para, sent := -1, -1
	for b := limit; b > own; b-- {
		switch strength[b] {
		case boundaryParagraph:
			if para < 0 {
				para = b
			}
		case boundarySentence:
			if sent < 0 {
				sent = b
			}
		}
		if para >= 0 {
			break
		}
	}

	switch {
	case para >= 0 && (sent < 0 || para-start >= maxTokens/2):
		return para, true
	case sent >= 0:
		return sent, true
	default:
		return limit, false
	}
}

// classify returns the boundary strength between two adjacent tokens.
func classify(text string, prev, next tokenizer.Span) int {
	gap := text[prev.End:next.Start]
	if gap == "" {
		return boundaryNone
	}
	newlines := strings.Count(gap, "\n")
	if newlines >= 2 {
		return boundaryParagraph
	}
	if newlines == 1 {
		return boundarySentence
	}
	switch text[prev.Start:prev.End] {
	case ".", "!", "?":
		return boundarySentence
	}
	return boundaryNone
}
