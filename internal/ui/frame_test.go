package ui

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestBuildFrame(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		labels  []string
		cursor  int
		columns int
		expect  []string
	}
	cases := []Case{
		{"empty", nil, -1, 20, []string{}},
		{"short", []string{"Bluetooth", "Exit"}, 1, 20, []string{"Bluetooth", "Exit <"}},
		{"exact", []string{"123456789012345678"}, 0, 20, []string{"123456789012345678 <"}},
		{"long", []string{"1234567890123456789"}, 0, 20, []string{"123456789012345... <"}},
		{"long-inactive", []string{"1234567890123456789", "x"}, 1, 20, []string{"123456789012345...", "x <"}},
		{"wide-runes", []string{"日本語のデバイス名"}, 0, 12, []string{"日本語... <"}},
		{"no-cursor", []string{"A", "B"}, -1, 20, []string{"A", "B"}},
		{"narrow", []string{"Bluetooth", "Exit"}, 0, 3, []string{"B <", "E"}},
		{"narrow-ellipsis", []string{"Bluetooth"}, 0, 5, []string{"... <"}},
		{"one-column", []string{"Bluetooth"}, 0, 1, []string{" "}},
		{"zero-columns", []string{"Bluetooth", "Exit"}, 1, 0, []string{"", ""}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			lines := BuildFrame(c.labels, c.cursor, c.columns, "<")
			assert.Equal(t, c.expect, lines)
			for _, line := range lines {
				assert.LessOrEqual(t, runewidth.StringWidth(line), c.columns, line)
			}
		})
	}
}

func TestBuildFrameWideGlyph(t *testing.T) {
	t.Parallel()

	// two cell glyph reserves one more column on every row
	lines := BuildFrame([]string{"12345678", "12345678"}, 0, 8, "<<")
	assert.Equal(t, []string{"12... <<", "12..."}, lines)
	for _, line := range lines {
		assert.LessOrEqual(t, runewidth.StringWidth(line), 8)
	}
}
