package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the lisper banner to w, colored for the given profile.
func PrintBanner(w io.Writer, p termenv.Profile) {
	lines := []struct {
		text  string
		color string
	}{
		{"  _     _", "#818cf8"},
		{" | |   (_)___ _ __   ___ _ __", "#a78bfa"},
		{" | |   | / __| '_ \\ / _ \\ '__|", "#c084fc"},
		{" | |___| \\__ \\ |_) |  __/ |", "#e879f9"},
		{" |_____|_|___/ .__/ \\___|_|", "#f472b6"},
		{"             |_|", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
