package plaintext

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

const byteOrderMark = "\ufeff"

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".txt", ".text"}
}

// Normalise returns the content as text with line endings unified.
func (n *Normaliser) Normalise(content []byte) (*driven.NormaliseResult, error) {
	text, err := Decode(content)
	if err != nil {
		return nil, err
	}
	return &driven.NormaliseResult{Text: text, Format: "text"}, nil
}

// Decode converts content to a string with any byte order mark removed and
// CRLF or CR line endings replaced by LF. Content that is not UTF-8 is
// rejected.
func Decode(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: content is not UTF-8 text", domain.ErrInvalidInput)
	}

	text := strings.TrimPrefix(string(content), byteOrderMark)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}
