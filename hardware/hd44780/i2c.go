package hd44780

import (
	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const DefaultAddress = 0x27

type port struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

func (self *port) Write(b []byte) (int, error) { return self.dev.Write(b) }
func (self *port) Close() error               { return self.bus.Close() }

// OpenI2C initializes periph host drivers and opens LCD on named bus ("1", "/dev/i2c-1", "" for first).
func OpenI2C(busName string, addr uint16, config Config) (*LCD, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Annotatef(err, "i2c open bus=%s", busName)
	}
	if addr == 0 {
		addr = DefaultAddress
	}
	p := &port{bus: bus, dev: &i2c.Dev{Bus: bus, Addr: addr}}
	lcd, err := New(p, config)
	if err != nil {
		_ = bus.Close()
		return nil, errors.Annotatef(err, "i2c bus=%s addr=%#x", busName, addr)
	}
	return lcd, nil
}
