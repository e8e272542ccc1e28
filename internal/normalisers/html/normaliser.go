package html

import (
	"bytes"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".html", ".htm"}
}

// Normalise returns the readable text of an HTML page, one block per line.
// The title is the first <title>, or the first <h1> when there is none.
func (n *Normaliser) Normalise(content []byte) (*driven.NormaliseResult, error) {
	text, err := plaintext.Decode(content)
	if err != nil {
		return nil, err
	}

	title, body := extract(text)
	return &driven.NormaliseResult{
		Text:   body,
		Title:  title,
		Format: "html",
	}, nil
}

// hidden elements never contribute text.
var hidden = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "iframe": true, "object": true, "canvas": true,
}

// blocks start and end on their own line.
var blocks = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "nav": true, "aside": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"table": true, "caption": true, "thead": true, "tbody": true, "tfoot": true, "tr": true,
	"blockquote": true, "pre": true, "figure": true, "figcaption": true,
	"form": true, "address": true, "br": true, "hr": true,
}

// page accumulates what the tokenizer yields.
type page struct {
	body    strings.Builder
	title   strings.Builder
	heading strings.Builder

	hiddenDepth int
	preDepth    int
	inTitle     bool
	titleDone   bool
	inH1        bool
	h1Done      bool
}

func (p *page) open(tag string, selfClosing bool) {
	switch {
	case hidden[tag]:
		if !selfClosing {
			p.hiddenDepth++
		}
		return
	case tag == "title":
		if selfClosing {
			return
		}
		if p.titleDone {
			p.hiddenDepth++
		} else {
			p.inTitle = true
		}
		return
	case tag == "h1" && !p.h1Done:
		p.inH1 = !selfClosing
	case tag == "pre":
		p.preDepth++
	}
	if blocks[tag] {
		p.body.WriteByte('\n')
	}
}

func (p *page) close(tag string) {
	switch {
	case hidden[tag]:
		if p.hiddenDepth > 0 {
			p.hiddenDepth--
		}
		return
	case tag == "title":
		if p.inTitle {
			p.inTitle, p.titleDone = false, true
		} else if p.hiddenDepth > 0 {
			p.hiddenDepth--
		}
		return
	case tag == "h1" && p.inH1:
		p.inH1, p.h1Done = false, true
	case tag == "pre" && p.preDepth > 0:
		p.preDepth--
	case tag == "td" || tag == "th":
		p.body.WriteByte(' ')
	}
	if blocks[tag] {
		p.body.WriteByte('\n')
	}
}

func (p *page) text(s string) {
	switch {
	case p.hiddenDepth > 0:
		return
	case p.inTitle:
		p.title.WriteString(s)
		return
	case p.inH1:
		p.heading.WriteString(s)
	}
	if p.preDepth == 0 {
		s = strings.Map(func(r rune) rune {
			if r == '\n' || r == '\t' {
				return ' '
			}
			return r
		}, s)
	}
	p.body.WriteString(s)
}

// extract tokenizes content and returns its title and body text. Entities
// are decoded; comments, markup and hidden elements are dropped.
func extract(content string) (title, body string) {
	var p page
	z := xhtml.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			// io.EOF: a strings.Reader cannot fail otherwise.
			title = collapse(p.title.String())
			if title == "" {
				title = collapse(p.heading.String())
			}
			return title, tidy(p.body.String())
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			p.open(string(bytes.ToLower(name)), tt == xhtml.SelfClosingTagToken)
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			p.close(string(bytes.ToLower(name)))
		case xhtml.TextToken:
			p.text(string(z.Text()))
		}
	}
}

// collapse joins the words of s with single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidy collapses spacing within each line and drops blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = collapse(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
