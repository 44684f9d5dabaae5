// Package state holds process wide configuration, lifecycle and lazily
// opened devices. Global travels through context.
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/tele"
	"github.com/temoto/robot-util/log2"
)

const ContextKey = "run/state-global"

const (
	DefaultBackend     = "embedded"
	DefaultPersistRoot = "./tmp-robot-util"
	DefaultTickMs      = 5
	DefaultCursor      = "<"
	DefaultServiceName = "org.bluez"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Tele         tele.Teler

	_copy_guard sync.Mutex //nolint:unused
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg

	g.Log.Infof("build version=%s", g.BuildVersion)

	if g.Config.Persist.Root == "" {
		g.Config.Persist.Root = DefaultPersistRoot
		g.Log.Infof("config: persist.root=empty changed=%s", g.Config.Persist.Root)
	}
	g.Log.Debugf("config: persist.root=%s", g.Config.Persist.Root)

	// tele is remote error reporting, init before anything else
	g.Config.Tele.BuildVersion = g.BuildVersion
	if g.Config.Tele.PersistPath == "" {
		g.Config.Tele.PersistPath = filepath.Join(g.Config.Persist.Root, "tele")
	}
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Tele); err != nil {
		g.Tele = tele.Noop{}
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)

	if g.Config.Tele.Enable && strings.HasSuffix(g.BuildVersion, "-dirty") {
		g.Error(fmt.Errorf("running development build with uncommited changes, bad idea for production"))
	}

	errs := make([]error, 0, 4)
	if g.Config.Backend == "" {
		g.Config.Backend = DefaultBackend
	}
	if g.Config.UI.TickMs == 0 {
		g.Config.UI.TickMs = DefaultTickMs
	} else if g.Config.UI.TickMs < 0 {
		errs = append(errs, errors.NotValidf("config: ui.tick_ms=%d", g.Config.UI.TickMs))
	}
	if g.Config.UI.IdleBacklightSec < 0 {
		errs = append(errs, errors.NotValidf("config: ui.idle_backlight_sec=%d", g.Config.UI.IdleBacklightSec))
	}
	if g.Config.UI.Cursor == "" {
		g.Config.UI.Cursor = DefaultCursor
	}
	if g.Config.Bluetooth.Service == "" {
		g.Config.Bluetooth.Service = DefaultServiceName
	}
	if g.Config.Bluetooth.CallTimeoutMs < 0 {
		errs = append(errs, errors.NotValidf("config: bluetooth.call_timeout_ms=%d", g.Config.Bluetooth.CallTimeoutMs))
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

// Stop starts shutdown, Alive subscribers see it on StopChan.
func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown releases devices opened through Global, in reverse order of dependency.
// Telemetry goes last to deliver errors of closing.
func (g *Global) Shutdown(ctx context.Context) {
	g.closeHardware(ctx)
	g.Tele.Close()
}
