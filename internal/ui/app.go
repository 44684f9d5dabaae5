// Package ui runs a stack of menus over a Backend on fixed tick.
// All App methods belong to one goroutine, the one calling Run or Tick.
package ui

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/bluetooth"
	"github.com/temoto/robot-util/internal/container"
	"github.com/temoto/robot-util/internal/menu"
	"github.com/temoto/robot-util/internal/state"
	"github.com/temoto/robot-util/internal/tele"
	"github.com/temoto/robot-util/internal/types"
	"github.com/temoto/robot-util/log2"
)

const (
	StatusOK      = 0
	StatusFailure = 1
)

const DefaultTickInterval = 5 * time.Millisecond

type App struct { //nolint:maligned
	g        *state.Global
	log      *log2.Log
	backend  types.Backend
	light    types.Backlighter   // nil when backend can't dim
	registry *bluetooth.Registry // nil when bluetooth disabled

	stack    container.List[*menu.Menu]
	dirty    bool
	exited   bool
	status   int
	pressed  bool
	dark     bool
	glyph    string
	interval time.Duration
	idle     time.Duration

	// press which woke screen up must not select on release
	ignoreRelease bool
	lastActivity  atomic_clock.Clock
	changed       uint32 // atomic, set by registry worker
	pairing       uint32 // atomic, toggle pair in progress
}

// NewApp opens backend and bluetooth registry through Global.
// Stack is empty, caller pushes first menu.
func NewApp(ctx context.Context) (*App, error) {
	g := state.GetGlobal(ctx)
	b, err := g.Backend()
	if err != nil {
		return nil, errors.Annotate(err, "ui backend")
	}
	r, err := g.Bluetooth()
	if err != nil {
		return nil, errors.Annotate(err, "ui bluetooth")
	}

	self := &App{
		g:        g,
		log:      g.Log,
		backend:  b,
		registry: r,
		dirty:    true,
		glyph:    g.Config.UI.Cursor,
		interval: helpers.IntMillisecondDefault(g.Config.UI.TickMs, DefaultTickInterval),
		idle:     helpers.IntSecondDefault(g.Config.UI.IdleBacklightSec, 0),
	}
	if bl, ok := b.(types.Backlighter); ok {
		self.light = bl
	}
	if cg, ok := b.(types.CursorGlypher); ok {
		if s := cg.CursorGlyph(); s != "" {
			self.glyph = s
		}
	}
	if r != nil {
		r.SetOnChange(func() { atomic.StoreUint32(&self.changed, 1) })
	}
	self.lastActivity.SetNow()
	self.log.Debugf("ui backend=%s tick=%v idle=%v", b.String(), self.interval, self.idle)
	return self, nil
}

func (self *App) Push(m *menu.Menu) {
	self.stack.Push(m)
	self.dirty = true
}

// Pop destroys top menu. Empty stack afterwards means nothing the user can do.
func (self *App) Pop() {
	m, ok := self.stack.Pop()
	if !ok {
		return
	}
	m.Free()
	self.dirty = true
	if self.stack.Len() == 0 {
		self.RequestExit(StatusFailure)
	}
}

// Top returns active menu or nil.
func (self *App) Top() *menu.Menu {
	m, _ := self.stack.Last()
	return m
}

func (self *App) Depth() int { return self.stack.Len() }

// RequestExit is sticky, first status wins.
func (self *App) RequestExit(status int) {
	if self.exited {
		return
	}
	self.exited = true
	self.status = status
	self.log.Infof("ui exit status=%d", status)
	self.g.Tele.State(tele.StateExited, status)
}

func (self *App) Exited() bool { return self.exited }

// Pairing reports whether background toggle pair is still running.
func (self *App) Pairing() bool { return atomic.LoadUint32(&self.pairing) == 1 }
func (self *App) Status() int  { return self.status }

// MoveCursor applies |delta| single steps to top menu, positive is forward.
func (self *App) MoveCursor(delta int) {
	top := self.Top()
	if top == nil || delta == 0 {
		return
	}
	forward := delta > 0
	if delta < 0 {
		delta = -delta
	}
	for i := 0; i < delta; i++ {
		top.MoveCursor(forward)
	}
	self.dirty = true
}

// Tick runs one iteration and sleeps the rest of tick interval.
func (self *App) Tick(ctx context.Context) {
	start := time.Now()
	self.step(ctx)
	if self.exited {
		return
	}
	if elapsed := time.Since(start); elapsed < self.interval {
		tmr := time.NewTimer(self.interval - elapsed)
		defer tmr.Stop()
		select {
		case <-tmr.C:
		case <-ctx.Done():
		}
	}
}

// Run ticks until exit requested, context cancelled or Global stopped.
// Returns process exit status.
func (self *App) Run(ctx context.Context) int {
	if !self.g.Alive.Add(1) {
		return StatusOK
	}
	defer self.g.Alive.Done()

	self.g.Tele.State(tele.StateRunning, 0)
	stopch := self.g.Alive.StopChan()
	for !self.exited {
		select {
		case <-ctx.Done():
			self.RequestExit(StatusOK)
		case <-stopch:
			self.RequestExit(StatusOK)
		default:
			self.Tick(ctx)
		}
	}
	return self.status
}

func (self *App) step(ctx context.Context) {
	if self.exited {
		return
	}
	if atomic.CompareAndSwapUint32(&self.changed, 1, 0) {
		self.registryChanged(ctx)
	}

	e, ok, err := self.backend.Poll()
	if err != nil {
		if errors.Cause(err) == types.ErrQuit {
			self.log.Infof("ui quit requested source=%s", self.backend.String())
			self.RequestExit(StatusOK)
			return
		}
		self.g.Error(errors.Annotate(err, "ui input"))
		self.RequestExit(StatusFailure)
		return
	}
	if ok {
		self.input(e)
	}
	if self.exited {
		return
	}

	if self.stack.Len() == 0 {
		self.RequestExit(StatusFailure)
		return
	}
	if self.dirty {
		if err := self.render(); err != nil {
			self.g.Error(errors.Annotate(err, "ui render"))
			self.RequestExit(StatusFailure)
			return
		}
	}
	self.checkIdle()
}

func (self *App) input(e types.InputEvent) {
	wasPressed := self.pressed
	self.pressed = e.Pressed
	if e.IsZero() && !wasPressed {
		return
	}
	self.lastActivity.SetNow()
	if self.dark {
		self.setBacklight(true)
		self.ignoreRelease = e.Pressed
		return
	}

	self.MoveCursor(e.Rotated)
	if wasPressed && !e.Pressed {
		if self.ignoreRelease {
			self.ignoreRelease = false
			return
		}
		if top := self.Top(); top != nil {
			self.log.Debugf("ui select menu=%s item=%s", top.Title, top.Current())
			top.Select()
			self.dirty = true
		}
	}
}

func (self *App) render() error {
	top := self.Top()
	columns, rows, err := self.backend.ViewportSize()
	if err != nil {
		return errors.Annotate(err, "viewport size")
	}
	labels, cursor := top.Window(rows)
	lines := BuildFrame(labels, cursor, columns, self.glyph)
	if err := self.backend.Render(lines, cursor); err != nil {
		return err
	}
	self.dirty = false
	return nil
}

func (self *App) checkIdle() {
	if self.light == nil || self.idle <= 0 || self.dark {
		return
	}
	if atomic_clock.Since(&self.lastActivity) < self.idle {
		return
	}
	self.log.Debugf("ui idle for %v, backlight off", self.idle)
	self.setBacklight(false)
}

func (self *App) setBacklight(on bool) {
	if self.light == nil {
		return
	}
	if err := self.light.SetBacklight(on); err != nil {
		self.g.Error(errors.Annotatef(err, "ui backlight=%t", on))
		return
	}
	self.dark = !on
}
