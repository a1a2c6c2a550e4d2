// Package markdown renders timer and entry descriptions for the terminal.
package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

type renderer interface {
	Render(string) (string, error)
}

var (
	rendererMu sync.Mutex
	renderers  = map[int]renderer{}
)

// Render formats markdown text for terminal output. It falls back to plain
// word-wrapped text when the markdown renderer fails.
func Render(width, indentBy int, input []byte) []byte {
	value := strings.TrimRight(normalizeNewlines(string(input)), "\n")
	if strings.TrimSpace(value) == "" {
		return nil
	}
	width = max(width, 1)
	indentBy = max(indentBy, 0)
	renderWidth := max(width-indentBy, 1)

	rendered := renderWith(markdownRenderer(renderWidth), value, renderWidth)
	rendered = strings.TrimRight(rendered, "\n")
	if strings.TrimSpace(rendered) == "" {
		return nil
	}
	if indentBy == 0 {
		return []byte(rendered)
	}
	return []byte(indent.String(rendered, uint(indentBy)))
}

// SafeRender is Render for callers that must never panic while printing.
func SafeRender(width, indentBy int, input []byte) (out []byte) {
	defer func() {
		if recover() != nil {
			out = []byte(strings.TrimRight(normalizeNewlines(string(input)), "\n"))
		}
	}()
	return Render(width, indentBy, input)
}

// Wrap word-wraps plain text without interpreting markdown.
func Wrap(width int, value string) string {
	return wordwrap.String(strings.TrimSpace(value), max(width, 1))
}

func renderWith(r renderer, value string, width int) string {
	if r == nil {
		return Wrap(width, value)
	}
	formatted, err := r.Render(value)
	if err != nil {
		return Wrap(width, value)
	}
	return formatted
}

func markdownRenderer(width int) renderer {
	rendererMu.Lock()
	defer rendererMu.Unlock()
	if cached, ok := renderers[width]; ok {
		return cached
	}
	style := styles.ASCIIStyleConfig
	style.Item.BlockPrefix = "- "
	created, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	renderers[width] = created
	return created
}

func normalizeNewlines(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	return strings.ReplaceAll(value, "\r", "\n")
}
