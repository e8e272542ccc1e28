package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Colour palette.
var (
	colourPrimary   = lipgloss.Color("#7C3AED")
	colourSecondary = lipgloss.Color("#06B6D4")
	colourMuted     = lipgloss.Color("#6C7086")
	colourSuccess   = lipgloss.Color("#A6E3A1")
	colourWarning   = lipgloss.Color("#F9E2AF")
	colourError     = lipgloss.Color("#F38BA8")
	colourBorder    = lipgloss.Color("#45475A")
)

// styles renders command output. Plain styles return text unchanged.
type styles struct {
	plain bool

	title    lipgloss.Style
	subtitle lipgloss.Style
	muted    lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	errorS   lipgloss.Style
	answer   lipgloss.Style
}

// stylesFor returns coloured styles when w is a terminal.
func stylesFor(w io.Writer) *styles {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return &styles{plain: true}
	}

	return &styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(colourPrimary),
		subtitle: lipgloss.NewStyle().Bold(true).Foreground(colourSecondary),
		muted:    lipgloss.NewStyle().Foreground(colourMuted),
		success:  lipgloss.NewStyle().Foreground(colourSuccess),
		warning:  lipgloss.NewStyle().Foreground(colourWarning),
		errorS:   lipgloss.NewStyle().Foreground(colourError),
		answer: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colourBorder).
			Padding(0, 1),
	}
}

func (s *styles) render(style lipgloss.Style, text string) string {
	if s.plain {
		return text
	}
	return style.Render(text)
}

func (s *styles) Title(text string) string { return s.render(s.title, text) }
func (s *styles) Subtitle(text string) string { return s.render(s.subtitle, text) }
func (s *styles) Muted(text string) string { return s.render(s.muted, text) }
func (s *styles) Success(text string) string { return s.render(s.success, text) }
func (s *styles) Warning(text string) string { return s.render(s.warning, text) }
func (s *styles) Error(text string) string { return s.render(s.errorS, text) }
func (s *styles) Answer(text string) string { return s.render(s.answer, text) }
