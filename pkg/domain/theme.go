package domain

import (
	"fmt"
	"strings"
)

// Theme is the display theme of a session.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DefaultTheme is used when no theme is configured.
const DefaultTheme = ThemeLight

// Themes lists every valid theme, in toggle order.
var Themes = []Theme{ThemeLight, ThemeDark}

// Toggle returns the other theme. Toggling twice yields the original value.
// Any value that is not dark toggles to dark.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// IsDark reports whether t is the dark theme.
func (t Theme) IsDark() bool {
	return t == ThemeDark
}

func (t Theme) String() string {
	return string(t)
}

// ParseTheme parses a theme name, case-insensitively.
// The empty string yields DefaultTheme.
func ParseTheme(s string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultTheme, nil
	case string(ThemeLight):
		return ThemeLight, nil
	case string(ThemeDark):
		return ThemeDark, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTheme, s)
}
