package bluetooth

import (
	"github.com/temoto/robot-util/internal/objbus"
	"github.com/temoto/robot-util/log2"
)

// agent accepts every request, the panel has no way to show or enter a passkey.
type agent struct {
	log *log2.Log
}

var _ objbus.Agent = &agent{}

func (self *agent) Release() { self.log.Debugf("bluetooth agent released") }

func (self *agent) Authorize(device objbus.Path, service string) error {
	self.log.Infof("bluetooth agent authorize device=%s service=%s", device, service)
	return nil
}

func (self *agent) Cancel() { self.log.Debugf("bluetooth agent request cancelled") }
