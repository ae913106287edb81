package sanitizer

import (
	"regexp"
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// orphanedMouse matches SGR mouse reports whose ESC prefix was consumed by
// the terminal before the rest reached the input.
var orphanedMouse = regexp.MustCompile(`\[<[0-9]+;[0-9]+;[0-9]+[Mm]`)

type Mode int

const (
	// Multiline keeps newlines; tabs become spaces.
	Multiline Mode = iota
	// SingleLine folds newlines and tabs into single spaces.
	SingleLine
)

// Clean strips terminal escape sequences and control characters from text
// headed to the agent or to a table cell.
func Clean(input string, mode Mode) string {
	if input == "" {
		return input
	}
	input = xansi.Strip(input)
	input = orphanedMouse.ReplaceAllString(input, "")
	input = strings.ReplaceAll(input, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r == '\n':
			if mode == SingleLine {
				b.WriteByte(' ')
				continue
			}
			b.WriteRune(r)
		case r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 127:
		default:
			b.WriteRune(r)
		}
	}
	if mode == SingleLine {
		return strings.Join(strings.Fields(b.String()), " ")
	}
	return b.String()
}
