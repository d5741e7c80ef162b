// Package diff renders the changes a normalization would make to a file.
package diff

import (
	"fmt"
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/aymanbagabas/go-udiff"
	"github.com/muesli/termenv"
)

// DefaultStyle is the chroma style used for colored output.
const DefaultStyle = "catppuccin-mocha"

// Unified returns a unified diff between before and after, labeled with name.
// It returns an empty string when the contents are equal.
func Unified(name string, before, after []byte) string {
	return udiff.Unified("a/"+name, "b/"+name, string(before), string(after))
}

// Renderer writes diffs, highlighted for the given color profile.
type Renderer struct {
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
}

// NewRenderer creates a [Renderer]. The [termenv.Ascii] profile disables
// highlighting.
func NewRenderer(profile termenv.Profile) *Renderer {
	formatterName := "noop"

	switch profile {
	case termenv.TrueColor:
		formatterName = "terminal16m"
	case termenv.ANSI256:
		formatterName = "terminal256"
	case termenv.ANSI:
		formatterName = "terminal8"
	case termenv.Ascii:
	}

	return &Renderer{
		lexer:     chroma.Coalesce(lexers.Get("diff")),
		formatter: formatters.Get(formatterName),
		style:     styles.Get(DefaultStyle),
	}
}

// Write renders text to w.
func (r *Renderer) Write(w io.Writer, text string) error {
	iterator, err := r.lexer.Tokenise(nil, text)
	if err != nil {
		return fmt.Errorf("lexer tokenize: %w", err)
	}

	err = r.formatter.Format(w, r.style, iterator)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	return nil
}
