// Package sanitize cleans untrusted editor input at transport boundaries.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSourceBytes bounds the size of a source text when no limit is configured.
const DefaultMaxSourceBytes = 64 * 1024

var (
	ErrSourceTooLarge = errors.New("source exceeds maximum allowed size")
	ErrInvalidUTF8    = errors.New("source contains invalid UTF-8 sequences")
)

// Source enforces the size limit, validates UTF-8 and strips control characters
// other than newline, tab and carriage return. A limit <= 0 selects DefaultMaxSourceBytes.
func Source(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxSourceBytes
	}
	if len(input) > limit {
		// Rejected rather than truncated so the evaluated text is what the user sent.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrSourceTooLarge, len(input), limit)
	}

	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// Fast path: if no control chars, return as is.
	if strings.IndexFunc(input, unsafeControl) < 0 {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
