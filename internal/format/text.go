// Package format provides shared text formatting utilities for terminal output.
package format

import (
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

// ansiRegex matches ANSI escape sequences
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripAnsi removes ANSI escape sequences from a string.
func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// DisplayWidth returns the visible width of s in terminal columns, ignoring
// ANSI escape sequences.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(StripAnsi(s))
}

// SingleLine collapses every whitespace run, newlines included, into one
// space so a cell never breaks a table row.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most maxWidth columns, ending in "..." when cut.
// Colors are dropped from truncated strings. It returns the result and its
// visible width.
func Truncate(s string, maxWidth int) (string, int) {
	width := DisplayWidth(s)
	if width <= maxWidth {
		return s, width
	}
	if maxWidth <= 3 {
		return strings.Repeat(".", max(maxWidth, 0)), max(maxWidth, 0)
	}
	out := runewidth.Truncate(StripAnsi(s), maxWidth, "...")
	return out, runewidth.StringWidth(out)
}

// PadRight pads a string with spaces to reach the target visible width.
func PadRight(s string, visibleWidth, targetWidth int) string {
	if visibleWidth >= targetWidth {
		return s
	}
	return s + strings.Repeat(" ", targetWidth-visibleWidth)
}

// Cell truncates and pads s to exactly width columns.
func Cell(s string, width int) string {
	out, w := Truncate(SingleLine(s), width)
	return PadRight(out, w, width)
}
