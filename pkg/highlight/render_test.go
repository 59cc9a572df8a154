package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/svoctor/lisper-go/pkg/domain"
)

func TestRenderer_HTMLEscapes(t *testing.T) {
	r := NewRenderer("", "")
	out := r.HTML(Highlight("(< 1 2) ; a & b"))

	assert.Contains(t, out, "&lt;")
	assert.Contains(t, out, "&amp;")
	assert.NotContains(t, out, "(< 1")
}

func TestRenderer_HTMLCarriesClasses(t *testing.T) {
	r := NewRenderer("", "")
	out := r.HTML(Highlight("; comment"))
	assert.Contains(t, out, `class="`)
}

func TestRenderer_PlainMarkup(t *testing.T) {
	r := NewRenderer("", "")
	out := r.HTML(plain("<b>"))
	assert.Contains(t, out, "&lt;b&gt;")
}

func TestRenderer_CSSPerTheme(t *testing.T) {
	r := NewRenderer(DefaultLightStyle, DefaultDarkStyle)

	light, err := r.CSS(domain.ThemeLight)
	require.NoError(t, err)
	dark, err := r.CSS(domain.ThemeDark)
	require.NoError(t, err)

	assert.Contains(t, light, ".chroma")
	assert.NotEqual(t, light, dark)
	assert.Same(t, r.Style(domain.ThemeDark), r.dark)
}
