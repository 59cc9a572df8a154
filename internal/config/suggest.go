package config

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance is the largest edit distance still offered as a suggestion.
const maxSuggestDistance = 3

// Suggest returns the valid value closest to input, or "" if none is close enough.
func Suggest(input string, valid []string) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, v := range valid {
		d := levenshtein.ComputeDistance(strings.ToLower(input), v)
		if d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

func oneOf(key, value string, valid []string) error {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, v := range valid {
		if normalized == v {
			return nil
		}
	}
	if s := Suggest(normalized, valid); s != "" {
		return fmt.Errorf("%s: unknown value %q (did you mean %q?)", key, value, s)
	}
	return fmt.Errorf("%s: unknown value %q (valid: %s)", key, value, strings.Join(valid, ", "))
}
