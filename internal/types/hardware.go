package types

import "io"

// RenderSink draws complete frames. active is row index of cursor or -1.
type RenderSink interface {
	ViewportSize() (columns, rows int, err error)
	Render(lines []string, active int) error
}

// CursorGlypher is optionally implemented by sinks with custom cursor mark.
type CursorGlypher interface {
	CursorGlyph() string
}

// Backlighter is optionally implemented by sinks capable of dimming.
type Backlighter interface {
	SetBacklight(on bool) error
}

// Backend is a complete UI device: input, output and lifetime.
type Backend interface {
	InputSource
	RenderSink
	io.Closer
}
