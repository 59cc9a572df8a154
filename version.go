package lisper

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var rawVersion string

// Version is the release version of lisper.
var Version = strings.TrimSpace(rawVersion)
