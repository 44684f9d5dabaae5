package state

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/backend"
	"github.com/temoto/robot-util/internal/bluetooth"
	"github.com/temoto/robot-util/internal/objbus"
	"github.com/temoto/robot-util/internal/persist"
	"github.com/temoto/robot-util/internal/types"
	"github.com/temoto/robot-util/internal/update"
	"github.com/temoto/robot-util/log2"
)

// Exported fields preset before first accessor call replace real devices (tests).
type hardware struct {
	Backend struct {
		once
		B types.Backend
	}
	Bus struct {
		once
		Conn objbus.Conn
		Loop *objbus.Loop
	}
	Bluetooth struct {
		once
		Registry *bluetooth.Registry
	}
	Names struct {
		once
		Cache *persist.NameCache
	}
	Updater struct {
		once
		U         *update.Updater
		Transport http.RoundTripper
	}
}

func (g *Global) Backend() (types.Backend, error) {
	x := &g.Hardware.Backend
	_ = x.do(func() error {
		if x.B != nil { // state-new testing mode
			return nil
		}
		x.B, x.err = backend.Open(g.Config.Backend, &g.Config.Hardware, g.Log)
		return x.err
	})
	return x.B, x.err
}

// ObjBus connects to system bus. Loop is created unstarted, users Acquire it.
func (g *Global) ObjBus() (objbus.Conn, *objbus.Loop, error) {
	x := &g.Hardware.Bus
	_ = x.do(func() error {
		log := g.busLog()
		if x.Conn == nil {
			var d *objbus.DBus
			d, x.err = objbus.NewSystemDBus(g.Config.Bluetooth.Service, log)
			if x.err != nil {
				return errors.Annotatef(x.err, "config: bluetooth.service=%s", g.Config.Bluetooth.Service)
			}
			x.Conn = d
		}
		x.Loop = objbus.NewLoop(x.Conn, log)
		return nil
	})
	return x.Conn, x.Loop, x.err
}

// Bluetooth returns nil,nil when disabled in config.
func (g *Global) Bluetooth() (*bluetooth.Registry, error) {
	x := &g.Hardware.Bluetooth
	_ = x.do(func() error {
		cfg := &g.Config.Bluetooth
		if !cfg.Enable {
			g.Log.Infof("bluetooth is disabled")
			return nil
		}
		conn, loop, err := g.ObjBus()
		if err != nil {
			x.err = err
			return err
		}
		opt := bluetooth.Options{
			CallTimeout:     helpers.IntMillisecondDefault(cfg.CallTimeoutMs, bluetooth.DefaultCallTimeout),
			Discovery:       cfg.Discovery,
			Agent:           cfg.Agent.Enable,
			AgentPath:       objbus.Path(cfg.Agent.Path),
			AgentCapability: cfg.Agent.Capability,
		}
		x.Registry, x.err = bluetooth.NewRegistry(conn, loop, g.busLog(), opt)
		return x.err
	})
	return x.Registry, x.err
}

// NameCache never returns nil. Unreadable storage is reported and
// replaced with memory only cache, labels then fall back to alias or address.
func (g *Global) NameCache() *persist.NameCache {
	x := &g.Hardware.Names
	_ = x.do(func() error {
		if x.Cache != nil {
			return nil
		}
		cache, err := persist.NewNameCache(g.Config.Persist.Root, g.Log)
		if err != nil {
			g.Error(errors.Annotatef(err, "config: persist.root=%s, names are not stored", g.Config.Persist.Root))
			cache, err = persist.NewNameCache("", g.Log)
			if err != nil {
				return err
			}
		}
		x.Cache = cache
		return nil
	})
	return x.Cache
}

// Updater returns nil when update.url is not set.
func (g *Global) Updater() *update.Updater {
	x := &g.Hardware.Updater
	_ = x.do(func() error {
		x.U = update.New(g.Config.Update, x.Transport, g.Log)
		return nil
	})
	return x.U
}

// closeHardware closes bluetooth chain and backend concurrently.
func (g *Global) closeHardware(ctx context.Context) {
	var wg sync.WaitGroup
	errch := make(chan error, 3)
	wg.Add(2)
	go helpers.WrapErrChan(&wg, errch, func() error {
		errs := make([]error, 0, 2)
		if x := &g.Hardware.Bluetooth; x.done() && x.Registry != nil {
			if err := x.Registry.Close(ctx); err != nil {
				errs = append(errs, errors.Annotate(err, "bluetooth close"))
			}
		}
		if x := &g.Hardware.Bus; x.done() && x.Conn != nil {
			if err := x.Conn.Close(); err != nil {
				errs = append(errs, errors.Annotate(err, "object bus close"))
			}
		}
		return helpers.FoldErrors(errs)
	})
	go helpers.WrapErrChan(&wg, errch, func() error {
		if x := &g.Hardware.Backend; x.done() && x.B != nil {
			return errors.Annotate(x.B.Close(), "backend close")
		}
		return nil
	})
	wg.Wait()
	close(errch)
	g.Error(helpers.FoldErrChan(errch))
}

func (g *Global) busLog() *log2.Log {
	log := g.Log.Clone(log2.LInfo)
	if g.Config.Bluetooth.LogDebug {
		log.SetLevel(log2.LDebug)
	}
	return log
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
