package tui

import (
	"github.com/charmbracelet/glamour"

	"github.com/svoctor/lisper-go/pkg/domain"
)

// NewRenderer returns a function that renders markdown using glamour, styled for the theme.
// A plain (non-terminal) output gets the "notty" style so no escape codes leak into files.
func NewRenderer(theme domain.Theme, width int, tty bool) (func(string) (string, error), error) {
	style := "light"
	switch {
	case !tty:
		style = "notty"
	case theme.IsDark():
		style = "dark"
	}
	if width <= 0 {
		width = defaultWidth
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}
