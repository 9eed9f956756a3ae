package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// MarkdownRenderer renders transcript messages for the terminal.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
}

// TerminalWidth returns the stdout width clamped to [40, 120], or 80 when
// stdout is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return min(max(width-4, 40), 120)
}

// NewMarkdownRenderer wraps at width. plainText drops colours for output
// that is not a terminal.
func NewMarkdownRenderer(width int, plainText bool) (*MarkdownRenderer, error) {
	style := glamour.WithStandardStyle("dark")
	if plainText {
		style = glamour.WithStandardStyle("notty")
	}
	renderer, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &MarkdownRenderer{renderer: renderer}, nil
}

// Render renders content, falling back to the raw text on failure. A nil
// renderer returns content unchanged.
func (r *MarkdownRenderer) Render(content string) string {
	if r == nil || content == "" {
		return content
	}
	rendered, err := r.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}
