package tui

import (
	"strings"

	"github.com/muesli/termenv"

	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/highlight"
)

// palette maps token kinds to colors for one theme.
type palette struct {
	kinds  map[highlight.Kind]string
	parens []string // cycled by nesting depth
}

var palettes = map[domain.Theme]palette{
	domain.ThemeLight: {
		kinds: map[highlight.Kind]string{
			highlight.KindComment:  "#6a737d",
			highlight.KindString:   "#032f62",
			highlight.KindNumber:   "#005cc5",
			highlight.KindKeyword:  "#d73a49",
			highlight.KindBuiltin:  "#6f42c1",
			highlight.KindOperator: "#d73a49",
			highlight.KindError:    "#b31d28",
		},
		parens: []string{"#6f42c1", "#005cc5", "#22863a", "#e36209"},
	},
	domain.ThemeDark: {
		kinds: map[highlight.Kind]string{
			highlight.KindComment:  "#75715e",
			highlight.KindString:   "#e6db74",
			highlight.KindNumber:   "#ae81ff",
			highlight.KindKeyword:  "#f92672",
			highlight.KindBuiltin:  "#66d9ef",
			highlight.KindOperator: "#f92672",
			highlight.KindError:    "#f92672",
		},
		parens: []string{"#a6e22e", "#66d9ef", "#fd971f", "#ae81ff"},
	},
}

// ANSI renders markup with terminal colors. With the Ascii profile the result is exactly
// the highlighted source text.
func ANSI(m *highlight.Markup, theme domain.Theme, p termenv.Profile) string {
	pal, ok := palettes[theme]
	if !ok {
		pal = palettes[domain.DefaultTheme]
	}
	var b strings.Builder
	writeNode(&b, m.Root, 0, pal, p)
	return b.String()
}

func writeNode(b *strings.Builder, n *highlight.Node, depth int, pal palette, p termenv.Profile) {
	if !n.IsLeaf() {
		next := depth
		if n.Kind == highlight.KindForm {
			next = depth + 1
		}
		for _, child := range n.Children {
			writeNode(b, child, next, pal, p)
		}
		return
	}

	var color string
	if n.Kind == highlight.KindParen && depth > 0 {
		color = pal.parens[(depth-1)%len(pal.parens)]
	} else {
		color = pal.kinds[n.Kind]
	}
	if color == "" || p == termenv.Ascii {
		b.WriteString(n.Text)
		return
	}
	s := termenv.String(n.Text).Foreground(p.Color(color))
	if n.Kind == highlight.KindComment {
		s = s.Italic()
	}
	b.WriteString(s.String())
}
