package types

import (
	"errors"
	"fmt"
)

// InputEvent is one poll result.
// Rotated is signed encoder steps since last poll, positive is forward.
// Pressed is current button level; UI derives release edge itself.
type InputEvent struct {
	Source  string
	Rotated int
	Pressed bool
}

func (e *InputEvent) IsZero() bool { return e.Rotated == 0 && !e.Pressed }

func (e *InputEvent) String() string {
	return fmt.Sprintf("InputEvent(source=%s rotated=%d pressed=%t)", e.Source, e.Rotated, e.Pressed)
}

// ErrQuit is returned by input sources when user asked to leave, e.g. pressed q in terminal.
var ErrQuit = errors.New("quit requested")

type InputSource interface {
	// Poll must not block. ok=false means no new sample.
	Poll() (e InputEvent, ok bool, err error)
	String() string
}
