// Package backend assembles concrete input and render devices into types.Backend.
package backend

import (
	"github.com/juju/errors"
	"github.com/temoto/robot-util/internal/types"
	"github.com/temoto/robot-util/log2"
)

const (
	NameEmbedded = "embedded"
	NameTerminal = "terminal"
)

type Config struct {
	GpioChip string `hcl:"gpio_chip"`
	Encoder  struct {
		Enable       bool   `hcl:"enable"`
		A            uint32 `hcl:"a"`
		B            uint32 `hcl:"b"`
		SW           uint32 `hcl:"sw"`
		InvertButton bool   `hcl:"invert_button"`
	} `hcl:"encoder"`
	DevInputEvent struct {
		Enable bool   `hcl:"enable"`
		Device string `hcl:"device"`
	} `hcl:"dev_input_event"`
	LCD struct {
		I2CBus   string `hcl:"i2c_bus"`
		Address  int    `hcl:"address"`
		Width    int    `hcl:"width"`
		Height   int    `hcl:"height"`
		Codepage string `hcl:"codepage"`
	} `hcl:"lcd"`
}

func Open(name string, config *Config, log *log2.Log) (types.Backend, error) {
	switch name {
	case NameEmbedded:
		b, err := OpenEmbedded(config, log)
		if err != nil {
			return nil, errors.Annotatef(err, "backend=%s", name)
		}
		return b, nil
	case NameTerminal, "":
		b, err := OpenTerminal(config, log)
		if err != nil {
			return nil, errors.Annotatef(err, "backend=%s", NameTerminal)
		}
		return b, nil
	default:
		return nil, errors.NotValidf("config: backend=%s valid: %s, %s", name, NameEmbedded, NameTerminal)
	}
}
