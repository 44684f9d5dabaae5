package backend

import (
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gpio-cdev-go"
	"github.com/temoto/robot-util/hardware/hd44780"
	"github.com/temoto/robot-util/hardware/input"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/types"
	"github.com/temoto/robot-util/log2"
)

const DefaultGpioChip = "/dev/gpiochip0"

// Screen is character display with fixed geometry.
type Screen interface {
	Size() (width, height int)
	WriteLine(row int, s string) error
	SetBacklight(on bool) error
	Close() error
}

type Embedded struct {
	log     *log2.Log
	input   types.InputSource
	screen  Screen
	closers []io.Closer
}

var _ types.Backend = new(Embedded)
var _ types.Backlighter = new(Embedded)

// NewEmbedded owns input, screen and closers.
func NewEmbedded(in types.InputSource, screen Screen, log *log2.Log, closers ...io.Closer) *Embedded {
	return &Embedded{
		log:     log,
		input:   in,
		screen:  screen,
		closers: closers,
	}
}

func OpenEmbedded(config *Config, log *log2.Log) (*Embedded, error) {
	closers := make([]io.Closer, 0, 4)
	fail := func(err error) (*Embedded, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	sources := make([]types.InputSource, 0, 2)
	if config.Encoder.Enable {
		chipName := config.GpioChip
		if chipName == "" {
			chipName = DefaultGpioChip
		}
		chip, err := gpio.Open(chipName, "robot-util")
		if err != nil {
			return fail(errors.Annotatef(err, "gpio open chip=%s", chipName))
		}
		closers = append(closers, chip)
		pins := input.EncoderPins{A: config.Encoder.A, B: config.Encoder.B, SW: config.Encoder.SW}
		enc, err := input.OpenEncoder(chip, pins, config.Encoder.InvertButton)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, enc)
		sources = append(sources, enc)
	} else {
		log.Infof("input=%s disabled", input.EncoderTag)
	}
	if config.DevInputEvent.Enable {
		src, err := input.NewDevInputEventSource(config.DevInputEvent.Device)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, src)
		sources = append(sources, src)
	} else {
		log.Infof("input=%s disabled", input.DevInputEventTag)
	}
	if len(sources) == 0 {
		return fail(errors.NotValidf("config: no input enabled (hardware.encoder or hardware.dev_input_event)"))
	}

	lcdConfig := hd44780.Config{
		Width:    config.LCD.Width,
		Height:   config.LCD.Height,
		Codepage: config.LCD.Codepage,
		Delay:    50 * time.Microsecond,
	}
	lcd, err := hd44780.OpenI2C(config.LCD.I2CBus, uint16(config.LCD.Address), lcdConfig)
	if err != nil {
		return fail(err)
	}

	var in types.InputSource = sources[0]
	if len(sources) > 1 {
		in = input.NewMulti(sources...)
	}
	return NewEmbedded(in, lcd, log, closers...), nil
}

func (self *Embedded) String() string { return NameEmbedded + "/" + self.input.String() }

func (self *Embedded) Poll() (types.InputEvent, bool, error) { return self.input.Poll() }

func (self *Embedded) ViewportSize() (int, int, error) {
	w, h := self.screen.Size()
	return w, h, nil
}

// Render writes every row, rows without line are blanked.
func (self *Embedded) Render(lines []string, active int) error {
	_, h := self.screen.Size()
	for row := 0; row < h; row++ {
		s := ""
		if row < len(lines) {
			s = lines[row]
		}
		if err := self.screen.WriteLine(row, s); err != nil {
			return errors.Annotate(err, "embedded render")
		}
	}
	return nil
}

func (self *Embedded) SetBacklight(on bool) error { return self.screen.SetBacklight(on) }

// Close dims and clears screen, then releases input devices.
func (self *Embedded) Close() error {
	errs := make([]error, 0, 1+len(self.closers))
	if err := self.screen.Close(); err != nil {
		errs = append(errs, errors.Annotate(err, "screen close"))
	}
	for i := len(self.closers) - 1; i >= 0; i-- {
		if err := self.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}
