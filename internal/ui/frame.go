package ui

import (
	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// BuildFrame converts menu window into display lines no wider than columns cells.
// Labels are cut to leave room for space and glyph, with ellipsis when it fits.
// Active row gets space and glyph appended.
func BuildFrame(labels []string, cursor int, columns int, glyph string) []string {
	if columns < 0 {
		columns = 0
	}
	width := columns - 1 - runewidth.StringWidth(glyph)
	if width < 0 {
		width = 0
	}
	lines := make([]string, len(labels))
	for i, label := range labels {
		line := label
		if runewidth.StringWidth(line) > width {
			tail := ellipsis
			if width < runewidth.StringWidth(ellipsis) {
				tail = ""
			}
			line = runewidth.Truncate(line, width, tail)
		}
		if i == cursor {
			line += " " + glyph
		}
		if runewidth.StringWidth(line) > columns {
			line = runewidth.Truncate(line, columns, "")
		}
		lines[i] = line
	}
	return lines
}
