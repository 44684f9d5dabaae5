package input

import (
	"github.com/juju/errors"
	"github.com/temoto/gpio-cdev-go"
	"github.com/temoto/robot-util/internal/types"
)

const EncoderTag = "encoder"

type EncoderPins struct {
	A  uint32 `hcl:"a"`
	B  uint32 `hcl:"b"`
	SW uint32 `hcl:"sw"`
}

// Encoder samples quadrature rotary encoder with push button.
// Poll must be called often enough to see every A edge.
type Encoder struct {
	lines  gpio.Lineser
	invert bool
	last   byte
}

var _ types.InputSource = new(Encoder)

func OpenEncoder(chip gpio.Chiper, pins EncoderPins, invertButton bool) (*Encoder, error) {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_INPUT, "robot-util-encoder", pins.A, pins.B, pins.SW)
	if err != nil {
		return nil, errors.Annotatef(err, "encoder open lines pins=%v", pins)
	}
	e, err := NewEncoder(lines, invertButton)
	if err != nil {
		_ = lines.Close()
		return nil, err
	}
	return e, nil
}

// NewEncoder expects lines in order A, B, SW.
func NewEncoder(lines gpio.Lineser, invertButton bool) (*Encoder, error) {
	data, err := lines.Read()
	if err != nil {
		return nil, errors.Annotate(err, "encoder initial read")
	}
	return &Encoder{
		lines:  lines,
		invert: invertButton,
		last:   data.Values[0],
	}, nil
}

func (self *Encoder) String() string { return EncoderTag }

func (self *Encoder) Poll() (types.InputEvent, bool, error) {
	data, err := self.lines.Read()
	if err != nil {
		return types.InputEvent{}, false, errors.Annotate(err, "encoder read")
	}
	a, b, sw := data.Values[0], data.Values[1], data.Values[2]
	e := types.InputEvent{
		Source:  EncoderTag,
		Rotated: Direction(a, b, self.last),
		Pressed: (sw != 0) != self.invert,
	}
	self.last = a
	return e, true, nil
}

func (self *Encoder) Close() error { return self.lines.Close() }

// Direction decodes one step on rising edge of A.
// Clockwise rotation raises A before B.
func Direction(a, b, last byte) int {
	if a == last || a == 0 {
		return 0
	}
	if a != b {
		return 1
	}
	return -1
}
