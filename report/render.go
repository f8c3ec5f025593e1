package report

import (
	"github.com/charmbracelet/glamour"
)

// Render formats markdown for a terminal. When no renderer can be built the
// markdown is returned as is.
func Render(markdown string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
