package ui

import (
	"context"

	"github.com/juju/errors"
	"github.com/temoto/robot-util/internal/menu"
	"github.com/temoto/robot-util/internal/update"
)

const (
	MenuMain      = "main"
	MenuBluetooth = "bluetooth"
)

const (
	labelUpdate    = "Update robot"
	labelBluetooth = "Bluetooth"
	labelExit      = "Exit"
)

// MainMenu lists "Update robot" only when update url is configured.
func (self *App) MainMenu(ctx context.Context) *menu.Menu {
	m := menu.New(MenuMain)
	if u := self.g.Updater(); u.Enabled() {
		m.Add(labelUpdate, func(*menu.Item) { self.updateRobot(ctx, u) }, nil, nil)
	}
	m.Add(labelBluetooth, func(*menu.Item) { self.Push(self.BluetoothMenu(ctx)) }, nil, nil)
	m.Add(labelExit, func(*menu.Item) { self.RequestExit(StatusOK) }, nil, nil)
	return m
}

// updateRobot does not block UI, request runs as Global background task.
func (self *App) updateRobot(ctx context.Context, u *update.Updater) {
	if !self.g.Alive.Add(1) {
		return
	}
	self.log.Infof("robot update requested")
	go func() {
		defer self.g.Alive.Done()
		if err := u.Trigger(ctx); err != nil {
			self.g.Error(errors.Annotate(err, "robot update"))
			return
		}
		self.log.Infof("robot update request sent")
	}()
}
