// Package input implements polled input sources: rotary encoder on GPIO
// lines and Linux /dev/input event devices.
package input

import (
	"strings"

	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/types"
)

// Multi merges several sources into one. Rotation sums, button is pressed
// when any source reports pressed. Errors of all sources are folded.
type Multi struct {
	sources []types.InputSource
	pressed []bool
}

var _ types.InputSource = new(Multi)

func NewMulti(sources ...types.InputSource) *Multi {
	return &Multi{
		sources: sources,
		pressed: make([]bool, len(sources)),
	}
}

func (self *Multi) String() string {
	names := make([]string, len(self.sources))
	for i, s := range self.sources {
		names[i] = s.String()
	}
	return strings.Join(names, "+")
}

func (self *Multi) Poll() (types.InputEvent, bool, error) {
	result := types.InputEvent{Source: self.String()}
	sampled := false
	errs := make([]error, 0, len(self.sources))
	for i, s := range self.sources {
		e, ok, err := s.Poll()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		sampled = true
		result.Rotated += e.Rotated
		self.pressed[i] = e.Pressed
	}
	for _, p := range self.pressed {
		result.Pressed = result.Pressed || p
	}
	return result, sampled, helpers.FoldErrors(errs)
}

// Close closes sources implementing io.Closer.
func (self *Multi) Close() error {
	errs := make([]error, 0, len(self.sources))
	for _, s := range self.sources {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return helpers.FoldErrors(errs)
}
