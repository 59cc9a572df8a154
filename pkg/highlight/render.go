package highlight

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/svoctor/lisper-go/pkg/domain"
)

const (
	DefaultLightStyle = "github"
	DefaultDarkStyle  = "monokai"
)

// Renderer produces HTML and CSS for markup, with one chroma style per theme.
type Renderer struct {
	formatter *chromahtml.Formatter
	light     *chroma.Style
	dark      *chroma.Style
}

// NewRenderer creates a Renderer. Unknown style names fall back to chroma's default style.
func NewRenderer(lightStyle, darkStyle string) *Renderer {
	if lightStyle == "" {
		lightStyle = DefaultLightStyle
	}
	if darkStyle == "" {
		darkStyle = DefaultDarkStyle
	}
	return &Renderer{
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.PreventSurroundingPre(true),
		),
		light: styles.Get(lightStyle),
		dark:  styles.Get(darkStyle),
	}
}

// Style returns the chroma style for a theme.
func (r *Renderer) Style(theme domain.Theme) *chroma.Style {
	if theme.IsDark() {
		return r.dark
	}
	return r.light
}

// HTML renders markup as class-annotated spans. The result embeds in any element that
// carries the "chroma" class. Rendering never fails; if the formatter errors, the text is
// returned escaped and unstyled.
func (r *Renderer) HTML(m *Markup) string {
	var b strings.Builder
	err := r.formatter.Format(&b, r.light, chroma.Literator(m.Tokens()...))
	if err != nil {
		return html.EscapeString(m.PlainText())
	}
	return b.String()
}

// CSS returns the stylesheet for a theme.
func (r *Renderer) CSS(theme domain.Theme) (string, error) {
	var b strings.Builder
	if err := r.formatter.WriteCSS(&b, r.Style(theme)); err != nil {
		return "", err
	}
	return b.String(), nil
}
