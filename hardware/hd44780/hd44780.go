// Package hd44780 drives HD44780 character LCD behind PCF8574 I2C backpack
// in 4-bit mode.
package hd44780

import (
	"io"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/paulrosania/go-charset/charset"
	_ "github.com/paulrosania/go-charset/data"
)

type Command byte

const (
	CommandClear    Command = 0x01
	CommandReturn   Command = 0x02
	CommandEntry    Command = 0x04
	CommandControl  Command = 0x08
	CommandFunction Command = 0x20
	CommandAddress  Command = 0x80
)

type Control byte

const (
	ControlOn         Control = 0x04
	ControlUnderscore Control = 0x02
	ControlBlink      Control = 0x01
)

// PCF8574 output bits
const (
	bitRS        byte = 1 << 0
	bitEnable    byte = 1 << 2
	bitBacklight byte = 1 << 3
)

const (
	DefaultWidth  = 20
	DefaultHeight = 4
)

// RowOffsets20x4 is DDRAM address of each row start.
var RowOffsets20x4 = []byte{0x00, 0x40, 0x14, 0x54}

type Config struct {
	Width    int
	Height   int
	Codepage string
	// Delay is sleep after each command, zero in tests.
	Delay time.Duration
}

type LCD struct {
	mu        sync.Mutex
	port      io.Writer
	backlight bool
	control   Control
	width     int
	height    int
	offsets   []byte
	tr        charset.Translator
	delay     time.Duration
}

// New initializes display attached to port, each Write of port is one I2C transaction.
func New(port io.Writer, config Config) (*LCD, error) {
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	if config.Height <= 0 {
		config.Height = DefaultHeight
	}
	if config.Height > len(RowOffsets20x4) {
		return nil, errors.NotValidf("hd44780 height=%d", config.Height)
	}
	self := &LCD{
		port:      port,
		backlight: true,
		width:     config.Width,
		height:    config.Height,
		offsets:   RowOffsets20x4[:config.Height],
		delay:     config.Delay,
	}
	if config.Codepage != "" {
		tr, err := charset.TranslatorTo(config.Codepage)
		if err != nil {
			return nil, errors.Annotatef(err, "hd44780 codepage=%s", config.Codepage)
		}
		self.tr = tr
	}
	if err := self.init4(); err != nil {
		return nil, errors.Annotate(err, "hd44780 init")
	}
	return self, nil
}

func (self *LCD) Size() (width, height int) { return self.width, self.height }

func (self *LCD) init4() error {
	self.sleep(50 * time.Millisecond)
	// reset sequence, 8-bit function set three times then switch to 4-bit
	for _, n := range []byte{0x30, 0x30, 0x30, 0x20} {
		if err := self.writeNibble(n); err != nil {
			return err
		}
		self.sleep(5 * time.Millisecond)
	}
	function := CommandFunction
	if self.height > 1 {
		function |= 0x08
	}
	for _, c := range []Command{function, CommandControl | Command(ControlOn), CommandEntry | 0x02} {
		if err := self.command(c); err != nil {
			return err
		}
	}
	self.control = ControlOn
	return self.Clear()
}

func (self *LCD) sleep(d time.Duration) {
	if self.delay != 0 {
		time.Sleep(d)
	}
}

// encodeByte returns PCF8574 port values for one byte: each nibble strobed by Enable.
func encodeByte(b byte, rs bool, backlight bool) []byte {
	flags := byte(0)
	if rs {
		flags |= bitRS
	}
	if backlight {
		flags |= bitBacklight
	}
	hi := (b & 0xf0) | flags
	lo := (b << 4) | flags
	return []byte{hi | bitEnable, hi, lo | bitEnable, lo}
}

func (self *LCD) blFlag() byte {
	if self.backlight {
		return bitBacklight
	}
	return 0
}

func (self *LCD) writeNibble(n byte) error {
	v := (n & 0xf0) | self.blFlag()
	_, err := self.port.Write([]byte{v | bitEnable, v})
	return err
}

func (self *LCD) command(c Command) error {
	_, err := self.port.Write(encodeByte(byte(c), false, self.backlight))
	self.sleep(self.delay)
	return err
}

func (self *LCD) data(bs []byte) error {
	if len(bs) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(bs)*4)
	for _, b := range bs {
		buf = append(buf, encodeByte(b, true, self.backlight)...)
	}
	_, err := self.port.Write(buf)
	return err
}

func (self *LCD) Clear() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	err := self.command(CommandClear)
	self.sleep(2 * time.Millisecond)
	return err
}

func (self *LCD) SetControl(c Control) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.control = c
	return self.command(CommandControl | Command(c))
}

func (self *LCD) SetBacklight(on bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.backlight = on
	_, err := self.port.Write([]byte{self.blFlag()})
	return errors.Annotate(err, "hd44780 backlight")
}

// WriteLine replaces row content, text is translated to codepage and padded with spaces.
func (self *LCD) WriteLine(row int, s string) error {
	if row < 0 || row >= self.height {
		return errors.NotValidf("hd44780 row=%d height=%d", row, self.height)
	}
	b, err := self.Translate(s)
	if err != nil {
		return err
	}
	b = padSpace(b, self.width)

	self.mu.Lock()
	defer self.mu.Unlock()
	if err = self.command(CommandAddress | Command(self.offsets[row])); err != nil {
		return errors.Annotatef(err, "hd44780 address row=%d", row)
	}
	return errors.Annotatef(self.data(b), "hd44780 data row=%d", row)
}

func (self *LCD) Translate(s string) ([]byte, error) {
	result := []byte(s)
	if self.tr == nil || len(result) == 0 {
		return result, nil
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	_, tb, err := self.tr.Translate(result, true)
	if err != nil {
		return nil, errors.Annotate(err, "hd44780 translate")
	}
	// translator reuses single internal buffer, make a copy
	return append([]byte(nil), tb...), nil
}

// Close clears screen and turns backlight off. Port is closed if it is io.Closer.
func (self *LCD) Close() error {
	errClear := self.Clear()
	errLight := self.SetBacklight(false)
	var errClose error
	if c, ok := self.port.(io.Closer); ok {
		errClose = c.Close()
	}
	if errClear != nil {
		return errClear
	}
	if errLight != nil {
		return errLight
	}
	return errClose
}

func padSpace(b []byte, width int) []byte {
	if len(b) >= width {
		return b[:width]
	}
	result := make([]byte, width)
	copy(result, b)
	for i := len(b); i < width; i++ {
		result[i] = ' '
	}
	return result
}
