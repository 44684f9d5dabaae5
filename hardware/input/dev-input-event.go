package input

import (
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/inputevent-go"
	"github.com/temoto/robot-util/internal/types"
)

const DevInputEventTag = "dev-input-event"

// linux/input-event-codes.h
const (
	evKey = 0x01

	KeyEnter = 28
	KeySpace = 57
	KeyUp    = 103
	KeyLeft  = 105
	KeyRight = 106
	KeyDown  = 108
)

// DevInputEventSource reads keyboard-like device in background goroutine.
// Arrow keys rotate, Enter and Space are the button.
type DevInputEventSource struct {
	f       io.ReadCloser
	ch      chan inputevent.InputEvent
	done    chan struct{}
	mu      sync.Mutex
	err     error
	pressed bool
}

var _ types.InputSource = new(DevInputEventSource)

func (self *DevInputEventSource) String() string { return DevInputEventTag }

func NewDevInputEventSource(device string) (*DevInputEventSource, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Annotatef(err, "input=%s", DevInputEventTag)
	}
	return NewReaderSource(f), nil
}

// NewReaderSource takes ownership of r.
func NewReaderSource(r io.ReadCloser) *DevInputEventSource {
	self := &DevInputEventSource{
		f:  r,
		ch:   make(chan inputevent.InputEvent, 64),
		done: make(chan struct{}),
	}
	go self.reader()
	return self
}

func (self *DevInputEventSource) reader() {
	defer close(self.done)
	defer close(self.ch)
	for {
		ie, err := inputevent.ReadOne(self.f)
		if err != nil {
			self.mu.Lock()
			self.err = err
			self.mu.Unlock()
			return
		}
		if ie.Type == evKey {
			self.ch <- ie
		}
	}
}

// Poll drains queued key events. Button state change ends the batch
// so press and release are never merged into one sample.
func (self *DevInputEventSource) Poll() (types.InputEvent, bool, error) {
	e := types.InputEvent{Source: DevInputEventTag, Pressed: self.pressed}
	ok := false
	for {
		select {
		case ie, open := <-self.ch:
			if !open {
				self.mu.Lock()
				err := self.err
				self.mu.Unlock()
				if err == io.EOF || ok {
					return e, ok, nil
				}
				return e, ok, errors.Annotatef(err, "input=%s", DevInputEventTag)
			}
			ok = true
			if self.apply(&e, ie) {
				return e, true, nil
			}
		default:
			return e, ok, nil
		}
	}
}

// apply returns true when button level changed.
func (self *DevInputEventSource) apply(e *types.InputEvent, ie inputevent.InputEvent) bool {
	down := ie.Value != int32(inputevent.KeyStateUp)
	switch ie.Code {
	case KeyUp, KeyLeft:
		if down {
			e.Rotated--
		}
	case KeyDown, KeyRight:
		if down {
			e.Rotated++
		}
	case KeyEnter, KeySpace:
		if down != self.pressed {
			self.pressed = down
			e.Pressed = down
			return true
		}
	}
	return false
}

func (self *DevInputEventSource) Close() error { return self.f.Close() }
