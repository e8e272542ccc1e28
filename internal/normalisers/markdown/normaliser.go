package markdown

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Normalise converts markdown to plain text. The first H1 heading, if any,
// becomes the title.
func (n *Normaliser) Normalise(content []byte) (*driven.NormaliseResult, error) {
	text, err := plaintext.Decode(content)
	if err != nil {
		return nil, err
	}

	return &driven.NormaliseResult{
		Text:   stripMarkdown(text),
		Title:  extractTitle(text),
		Format: "markdown",
	}, nil
}

// Pre-compiled regular expressions for markdown stripping.
var (
	fences        = regexp.MustCompile("(?m)^[ \t]*(?:```|~~~).*(?:\n|$)")
	rules         = regexp.MustCompile(`(?m)^[ \t]*[-*_]{3,}[ \t]*$`)
	headings      = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	blockquotes   = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	listMarkers   = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numberedList  = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	images        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	inlineCode    = regexp.MustCompile("`([^`\n]+)`")
	boldStars     = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	boldUnders    = regexp.MustCompile(`__([^_\n]+)__`)
	italicStars   = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUnders  = regexp.MustCompile(`\b_([^_\n]+)_\b`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractTitle returns the text of the first H1 heading.
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

// stripMarkdown removes markdown syntax and keeps the readable text,
// including the contents of code blocks.
func stripMarkdown(content string) string {
	content = fences.ReplaceAllString(content, "")
	content = rules.ReplaceAllString(content, "")
	content = headings.ReplaceAllString(content, "")
	content = blockquotes.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "")
	content = numberedList.ReplaceAllString(content, "")

	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = boldStars.ReplaceAllString(content, "$1")
	content = boldUnders.ReplaceAllString(content, "$1")
	content = italicStars.ReplaceAllString(content, "$1")
	content = italicUnders.ReplaceAllString(content, "$1")

	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
