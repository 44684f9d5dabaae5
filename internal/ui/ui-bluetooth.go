package ui

import (
	"context"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/bluetooth"
	"github.com/temoto/robot-util/internal/menu"
	"github.com/temoto/robot-util/internal/tele"
)

const (
	labelRefresh = "Refresh"
	labelBack    = "Back"
	pairedSuffix = "*"
)

// BluetoothMenu is built from registry snapshot, device handles stay owned by registry.
// Devices without any displayable name are skipped.
func (self *App) BluetoothMenu(ctx context.Context) *menu.Menu {
	m := menu.New(MenuBluetooth)
	m.Add(labelRefresh, func(*menu.Item) { self.RefreshBluetooth(ctx) }, nil, nil)

	var devices []*bluetooth.Device
	if self.registry != nil {
		devices = self.registry.Devices()
	}
	infos := make([]tele.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		label, name := self.deviceLabel(d)
		infos = append(infos, tele.DeviceInfo{Address: d.Address(), Name: name, Paired: d.Paired()})
		if label == "" {
			self.log.Debugf("ui bluetooth skip unnamed %s", d.String())
			continue
		}
		m.Add(label, self.selectDevice(ctx), d, nil)
	}
	m.Add(labelBack, func(*menu.Item) { self.Pop() }, nil, nil)

	self.log.Debugf("ui bluetooth menu devices=%d items=%d", len(devices), m.Len())
	self.g.Tele.Devices(infos)
	return m
}

// RefreshBluetooth replaces top bluetooth menu with fresh snapshot, keeping cursor position.
func (self *App) RefreshBluetooth(ctx context.Context) {
	top := self.Top()
	if top == nil || top.Title != MenuBluetooth {
		return
	}
	cursor := top.Cursor()
	if old, ok := self.stack.Pop(); ok {
		old.Free()
	}
	m := self.BluetoothMenu(ctx)
	m.SetCursor(cursor)
	self.Push(m)
}

func (self *App) registryChanged(ctx context.Context) {
	if top := self.Top(); top != nil && top.Title == MenuBluetooth {
		self.RefreshBluetooth(ctx)
	}
}

// deviceLabel prefers reported name, then remembered name, alias, address.
func (self *App) deviceLabel(d *bluetooth.Device) (label, name string) {
	names := self.g.NameCache()
	address := d.Address()
	name, ok := d.Name()
	if ok {
		if _, err := names.Remember(address, name); err != nil {
			self.g.Error(errors.Annotatef(err, "remember bluetooth name address=%s", address))
		}
	} else if cached, found := names.Get(address); found {
		name = cached
	}
	label = name
	if label == "" {
		label = d.Alias()
	}
	if label == "" {
		label = address
	}
	if label != "" && d.Paired() {
		label += pairedSuffix
	}
	return label, name
}

func (self *App) selectDevice(ctx context.Context) menu.Action {
	return func(item *menu.Item) {
		d := item.Payload.(*bluetooth.Device)
		if self.registry == nil {
			return
		}
		self.togglePair(ctx, d)
	}
}

// togglePair runs bus call as Global background task, one at a time.
// Tick sees the outcome as registry change. Global stop cancels the call.
func (self *App) togglePair(ctx context.Context, d *bluetooth.Device) {
	if !atomic.CompareAndSwapUint32(&self.pairing, 0, 1) {
		self.log.Infof("ui bluetooth toggle pair busy, ignore %s", d.String())
		return
	}
	if !self.g.Alive.Add(1) {
		atomic.StoreUint32(&self.pairing, 0)
		return
	}
	op := alive.NewAlive()
	opctx, cancel := context.WithCancel(ctx)
	go func() {
		helpers.AliveSub(self.g.Alive, op)
		cancel()
	}()
	go func() {
		defer self.g.Alive.Done()
		err := self.registry.TogglePair(opctx, d)
		op.Stop()
		atomic.StoreUint32(&self.pairing, 0)
		atomic.StoreUint32(&self.changed, 1)
		if err != nil {
			self.g.Error(errors.Annotatef(err, "toggle pair %s", d.String()))
		}
	}()
}
