// Package termlog turns raw process output into clean, bounded scrollback.
package termlog

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Sanitize strips ANSI escape sequences (colors, cursor movement, OSC titles)
// and control characters other than tab and newline, then trims surrounding
// whitespace. An empty result means there is nothing worth showing.
func Sanitize(chunk string) string {
	stripped := ansi.Strip(chunk)
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20, r == 0x7f:
			return -1
		case r >= 0x80 && r <= 0x9f:
			return -1
		}
		return r
	}, stripped)
	return strings.TrimSpace(cleaned)
}
