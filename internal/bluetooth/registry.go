// Package bluetooth keeps thread-safe registry of BlueZ adapters, devices
// and agent managers, fed by object bus signals on objbus.Loop worker.
package bluetooth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/internal/container"
	"github.com/temoto/robot-util/internal/objbus"
	"github.com/temoto/robot-util/log2"
)

const (
	DefaultCallTimeout     = 2 * time.Second
	DefaultAgentPath       = objbus.Path("/robot_util/agent")
	DefaultAgentCapability = "NoInputNoOutput"
)

type Options struct {
	CallTimeout time.Duration
	// Discovery starts discovery on adapters which are not discovering yet.
	Discovery       bool
	Agent           bool
	AgentPath       objbus.Path
	AgentCapability string
}

func (o *Options) setDefaults() {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.AgentPath == "" {
		o.AgentPath = DefaultAgentPath
	}
	if o.AgentCapability == "" {
		o.AgentCapability = DefaultAgentCapability
	}
}

// Registry mutations happen only on loop worker, in signal order.
// Readers get snapshot copies. Lock is never held across bus calls.
// Snapshot slices are owned by caller, records inside are shared.
type Registry struct {
	conn objbus.Conn
	loop *objbus.Loop
	log  *log2.Log
	opt  Options

	mu       sync.Mutex
	devices  *container.Map[objbus.Path, *Device]
	adapters *container.Map[objbus.Path, *Adapter]
	managers *container.Map[objbus.Path, *AgentManager]

	onChange      atomic.Value // func()
	removeHandler func()
	agent         *agent
	agentExported bool // worker only
	closeOnce     sync.Once
}

// NewRegistry acquires loop and schedules initial population from ManagedObjects.
func NewRegistry(conn objbus.Conn, loop *objbus.Loop, log *log2.Log, opt Options) (*Registry, error) {
	opt.setDefaults()
	self := &Registry{
		conn:     conn,
		loop:     loop,
		log:      log,
		opt:      opt,
		devices:  container.NewMap[objbus.Path, *Device](),
		adapters: container.NewMap[objbus.Path, *Adapter](),
		managers: container.NewMap[objbus.Path, *AgentManager](),
		agent:    &agent{log: log},
	}
	self.removeHandler = loop.Handle(self.handle)
	if err := loop.Acquire(); err != nil {
		self.removeHandler()
		return nil, errors.Annotate(err, "bluetooth registry")
	}
	if !loop.Post(self.populate) {
		self.removeHandler()
		loop.Release()
		return nil, errors.Errorf("bluetooth registry: loop stopped")
	}
	return self, nil
}

// SetOnChange registers f called on worker after registry content changed.
func (self *Registry) SetOnChange(f func()) { self.onChange.Store(f) }

// Sync waits until previously received signals are applied.
func (self *Registry) Sync(ctx context.Context) error { return self.loop.Sync(ctx) }

func (self *Registry) Devices() []*Device {
	var result []*Device
	helpers.WithLock(&self.mu, func() { result = self.devices.Values() })
	return result
}

func (self *Registry) Adapters() []*Adapter {
	var result []*Adapter
	helpers.WithLock(&self.mu, func() { result = self.adapters.Values() })
	return result
}

func (self *Registry) AgentManagers() []*AgentManager {
	var result []*AgentManager
	helpers.WithLock(&self.mu, func() { result = self.managers.Values() })
	return result
}

func (self *Registry) Device(path objbus.Path) (*Device, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.devices.Get(path)
}

func (self *Registry) Adapter(path objbus.Path) (*Adapter, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.adapters.Get(path)
}

// TogglePair pairs unpaired device, or removes paired device from its adapter.
func (self *Registry) TogglePair(ctx context.Context, d *Device) error {
	if d.Released() {
		return errors.NotFoundf("device %s", d.Path())
	}
	ctx, cancel := context.WithTimeout(ctx, self.opt.CallTimeout)
	defer cancel()
	if !d.Paired() {
		self.log.Infof("bluetooth pair device=%s", d.Path())
		return errors.Annotate(d.obj.Call(ctx, IfaceDevice+".Pair"), "bluetooth pair")
	}
	adapterPath := d.Adapter()
	a, ok := self.Adapter(adapterPath)
	if !ok {
		return errors.NotFoundf("adapter %s of device %s", adapterPath, d.Path())
	}
	self.log.Infof("bluetooth remove device=%s adapter=%s", d.Path(), adapterPath)
	return errors.Annotate(a.obj.Call(ctx, IfaceAdapter+".RemoveDevice", d.Path()), "bluetooth unpair")
}

// Close stops discovery and unregisters agent where this registry started them,
// releases all records and the loop.
func (self *Registry) Close(ctx context.Context) error {
	var err error
	self.closeOnce.Do(func() {
		done := make(chan struct{})
		if self.loop.Post(func(wctx context.Context) {
			defer close(done)
			self.shutdown(wctx)
		}) {
			select {
			case <-done:
			case <-ctx.Done():
				err = errors.Annotate(ctx.Err(), "bluetooth registry close")
			}
		}
		self.removeHandler()
		self.loop.Release()
	})
	return err
}

func (self *Registry) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, self.opt.CallTimeout)
}

func (self *Registry) notify() {
	if f, ok := self.onChange.Load().(func()); ok && f != nil {
		f()
	}
}

func (self *Registry) populate(ctx context.Context) {
	cctx, cancel := self.callCtx(ctx)
	objects, err := self.conn.ManagedObjects(cctx)
	cancel()
	if err != nil {
		self.log.Errorf("bluetooth registry populate err=%v", errors.ErrorStack(err))
		return
	}
	self.log.Debugf("bluetooth registry populate objects=%d", len(objects))
	for path, ifaces := range objects {
		self.added(ctx, path, ifaces)
	}
}

func (self *Registry) handle(ctx context.Context, s objbus.Signal) {
	switch s.Kind {
	case objbus.SignalInterfacesAdded:
		self.added(ctx, s.Path, s.Added)
	case objbus.SignalInterfacesRemoved:
		self.removed(ctx, s.Path, s.Removed)
	case objbus.SignalPropertiesChanged:
		self.changed(s.Path, s.Interface, s.Changed)
	}
}

// fetch returns props, calling GetAll when signal did not carry them.
func (self *Registry) fetch(ctx context.Context, obj *objbus.Object, iface string, props objbus.Properties) objbus.Properties {
	if len(props) != 0 {
		return props
	}
	cctx, cancel := self.callCtx(ctx)
	defer cancel()
	fetched, err := obj.GetAll(cctx, iface)
	if err != nil {
		self.log.Debugf("bluetooth fetch properties err=%v", err)
		return objbus.Properties{}
	}
	return fetched
}

func (self *Registry) added(ctx context.Context, path objbus.Path, ifaces objbus.Interfaces) {
	changed := false
	if props, ok := ifaces[IfaceAdapter]; ok {
		self.addAdapter(ctx, path, props)
		changed = true
	}
	if props, ok := ifaces[IfaceDevice]; ok {
		self.addDevice(ctx, path, props)
		changed = true
	}
	if _, ok := ifaces[IfaceAgentManager]; ok {
		self.addAgentManager(ctx, path)
		changed = true
	}
	if changed {
		self.notify()
	}
}

func (self *Registry) addDevice(ctx context.Context, path objbus.Path, props objbus.Properties) {
	obj := objbus.NewObject(self.conn, path)
	d := newDevice(obj, self.fetch(ctx, obj, IfaceDevice, props))

	self.mu.Lock()
	old, replaced := self.devices.Set(path, d)
	self.mu.Unlock()
	if replaced {
		old.obj.Release()
	}
	self.log.Debugf("bluetooth device added %s replaced=%t", d.String(), replaced)
}

func (self *Registry) addAdapter(ctx context.Context, path objbus.Path, props objbus.Properties) {
	obj := objbus.NewObject(self.conn, path)
	a := newAdapter(obj, self.fetch(ctx, obj, IfaceAdapter, props))

	self.mu.Lock()
	old, replaced := self.adapters.Set(path, a)
	self.mu.Unlock()
	if replaced {
		// symmetry survives record replacement
		a.setStartedDiscovery(old.StartedDiscovery())
		old.obj.Release()
	}
	self.log.Debugf("bluetooth adapter added path=%s replaced=%t", path, replaced)

	if self.opt.Discovery && !a.Discovering() && !a.StartedDiscovery() {
		cctx, cancel := self.callCtx(ctx)
		err := a.obj.Call(cctx, IfaceAdapter+".StartDiscovery")
		cancel()
		if err != nil {
			self.log.Errorf("bluetooth start discovery adapter=%s err=%v", path, err)
			return
		}
		a.setStartedDiscovery(true)
	}
}

func (self *Registry) addAgentManager(ctx context.Context, path objbus.Path) {
	m := &AgentManager{obj: objbus.NewObject(self.conn, path)}
	self.mu.Lock()
	old, replaced := self.managers.Set(path, m)
	self.mu.Unlock()
	if replaced {
		old.obj.Release()
	}
	if self.opt.Agent {
		if err := self.registerAgent(ctx, m); err != nil {
			self.log.Errorf("bluetooth agent register manager=%s err=%v", path, err)
		}
	}
}

func (self *Registry) registerAgent(ctx context.Context, m *AgentManager) error {
	if !self.agentExported {
		if err := self.conn.ExportAgent(self.opt.AgentPath, self.agent); err != nil {
			return errors.Trace(err)
		}
		self.agentExported = true
	}
	cctx, cancel := self.callCtx(ctx)
	defer cancel()
	if err := m.obj.Call(cctx, IfaceAgentManager+".RegisterAgent", self.opt.AgentPath, self.opt.AgentCapability); err != nil {
		return errors.Trace(err)
	}
	m.setRegistered(true)
	if err := m.obj.Call(cctx, IfaceAgentManager+".RequestDefaultAgent", self.opt.AgentPath); err != nil {
		return errors.Trace(err)
	}
	self.log.Infof("bluetooth agent registered path=%s capability=%s", self.opt.AgentPath, self.opt.AgentCapability)
	return nil
}

func (self *Registry) removed(ctx context.Context, path objbus.Path, ifaces []string) {
	changed := false
	for _, iface := range ifaces {
		switch iface {
		case IfaceAdapter:
			self.mu.Lock()
			a, ok := self.adapters.Delete(path)
			self.mu.Unlock()
			if ok {
				self.stopDiscovery(ctx, a)
				a.obj.Release()
				changed = true
			}

		case IfaceDevice:
			self.mu.Lock()
			d, ok := self.devices.Delete(path)
			self.mu.Unlock()
			if ok {
				d.obj.Release()
				changed = true
			}

		case IfaceAgentManager:
			self.mu.Lock()
			m, ok := self.managers.Delete(path)
			self.mu.Unlock()
			if ok {
				m.obj.Release()
				changed = true
			}
		}
	}
	if changed {
		self.log.Debugf("bluetooth removed path=%s ifaces=%v", path, ifaces)
		self.notify()
	}
}

func (self *Registry) changed(path objbus.Path, iface string, props objbus.Properties) {
	switch iface {
	case IfaceDevice:
		d, ok := self.Device(path)
		if !ok {
			return
		}
		d.update(props)
	case IfaceAdapter:
		a, ok := self.Adapter(path)
		if !ok {
			return
		}
		a.update(props)
	default:
		return
	}
	self.notify()
}

func (self *Registry) stopDiscovery(ctx context.Context, a *Adapter) {
	if !a.StartedDiscovery() {
		return
	}
	cctx, cancel := self.callCtx(ctx)
	err := a.obj.Call(cctx, IfaceAdapter+".StopDiscovery")
	cancel()
	a.setStartedDiscovery(false)
	if err != nil {
		self.log.Debugf("bluetooth stop discovery adapter=%s err=%v", a.Path(), err)
	}
}

func (self *Registry) shutdown(ctx context.Context) {
	self.mu.Lock()
	adapters := self.adapters.Clear()
	devices := self.devices.Clear()
	managers := self.managers.Clear()
	self.mu.Unlock()

	for _, a := range adapters {
		self.stopDiscovery(ctx, a)
		a.obj.Release()
	}
	for _, m := range managers {
		if m.Registered() {
			cctx, cancel := self.callCtx(ctx)
			if err := m.obj.Call(cctx, IfaceAgentManager+".UnregisterAgent", self.opt.AgentPath); err != nil {
				self.log.Debugf("bluetooth agent unregister err=%v", err)
			}
			cancel()
			m.setRegistered(false)
		}
		m.obj.Release()
	}
	for _, d := range devices {
		d.obj.Release()
	}
	if self.agentExported {
		if err := self.conn.UnexportAgent(self.opt.AgentPath); err != nil {
			self.log.Debugf("bluetooth agent unexport err=%v", err)
		}
		self.agentExported = false
	}
	self.notify()
}
