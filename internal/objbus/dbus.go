package objbus

import (
	"context"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/juju/errors"
	"github.com/temoto/robot-util/log2"
)

const (
	ifaceAgent = "org.bluez.Agent1"

	memberInterfacesAdded   = IfaceObjectManager + ".InterfacesAdded"
	memberInterfacesRemoved = IfaceObjectManager + ".InterfacesRemoved"
	memberPropertiesChanged = IfaceProperties + ".PropertiesChanged"

	dbusSignalBuffer = 64
)

// DBus is Conn to one service on D-Bus.
type DBus struct {
	conn    *dbus.Conn
	log     *log2.Log
	service string
}

var _ Conn = &DBus{}

func NewSystemDBus(service string, log *log2.Log) (*DBus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, errors.Annotate(err, "dbus connect system bus")
	}
	return &DBus{conn: conn, log: log, service: service}, nil
}

func (self *DBus) object(path Path) dbus.BusObject {
	return self.conn.Object(self.service, dbus.ObjectPath(path))
}

func (self *DBus) ManagedObjects(ctx context.Context) (map[Path]Interfaces, error) {
	var raw map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := self.object("/").CallWithContext(ctx, IfaceObjectManager+".GetManagedObjects", 0)
	if err := call.Store(&raw); err != nil {
		return nil, errors.Annotate(err, "dbus GetManagedObjects")
	}
	result := make(map[Path]Interfaces, len(raw))
	for path, ifaces := range raw {
		result[Path(path)] = fromDBusInterfaces(ifaces)
	}
	return result, nil
}

func (self *DBus) GetAll(ctx context.Context, path Path, iface string) (Properties, error) {
	var raw map[string]dbus.Variant
	call := self.object(path).CallWithContext(ctx, IfaceProperties+".GetAll", 0, iface)
	if err := call.Store(&raw); err != nil {
		return nil, errors.Annotatef(err, "dbus GetAll path=%s iface=%s", path, iface)
	}
	return fromDBusProperties(raw), nil
}

func (self *DBus) Call(ctx context.Context, path Path, method string, args ...interface{}) error {
	dargs := make([]interface{}, len(args))
	for i, a := range args {
		if p, ok := a.(Path); ok {
			dargs[i] = dbus.ObjectPath(p)
		} else {
			dargs[i] = a
		}
	}
	call := self.object(path).CallWithContext(ctx, method, 0, dargs...)
	return errors.Annotatef(call.Err, "dbus call path=%s method=%s", path, method)
}

func (self *DBus) matchOptions() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{dbus.WithMatchSender(self.service), dbus.WithMatchInterface(IfaceObjectManager)},
		{dbus.WithMatchSender(self.service), dbus.WithMatchInterface(IfaceProperties), dbus.WithMatchMember("PropertiesChanged")},
	}
}

func (self *DBus) Subscribe(ctx context.Context) (<-chan Signal, error) {
	matches := self.matchOptions()
	for i, m := range matches {
		if err := self.conn.AddMatchSignal(m...); err != nil {
			for _, added := range matches[:i] {
				_ = self.conn.RemoveMatchSignal(added...)
			}
			return nil, errors.Annotate(err, "dbus AddMatchSignal")
		}
	}
	raw := make(chan *dbus.Signal, dbusSignalBuffer)
	self.conn.Signal(raw)
	out := make(chan Signal, dbusSignalBuffer)
	go func() {
		defer close(out)
		defer func() {
			self.conn.RemoveSignal(raw)
			for _, m := range matches {
				_ = self.conn.RemoveMatchSignal(m...)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ds, ok := <-raw:
				if !ok {
					return
				}
				s, ok := fromDBusSignal(ds)
				if !ok {
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (self *DBus) ExportAgent(path Path, agent Agent) error {
	err := self.conn.Export(dbusAgent{agent: agent, log: self.log}, dbus.ObjectPath(path), ifaceAgent)
	return errors.Annotatef(err, "dbus export agent path=%s", path)
}

func (self *DBus) UnexportAgent(path Path) error {
	err := self.conn.Export(nil, dbus.ObjectPath(path), ifaceAgent)
	return errors.Annotatef(err, "dbus unexport agent path=%s", path)
}

func (self *DBus) Close() error { return self.conn.Close() }

func fromDBusSignal(ds *dbus.Signal) (Signal, bool) {
	switch ds.Name {
	case memberInterfacesAdded:
		var path dbus.ObjectPath
		var ifaces map[string]map[string]dbus.Variant
		if err := dbus.Store(ds.Body, &path, &ifaces); err != nil {
			return Signal{}, false
		}
		return Signal{Kind: SignalInterfacesAdded, Path: Path(path), Added: fromDBusInterfaces(ifaces)}, true

	case memberInterfacesRemoved:
		var path dbus.ObjectPath
		var ifaces []string
		if err := dbus.Store(ds.Body, &path, &ifaces); err != nil {
			return Signal{}, false
		}
		return Signal{Kind: SignalInterfacesRemoved, Path: Path(path), Removed: ifaces}, true

	case memberPropertiesChanged:
		if len(ds.Body) < 2 {
			return Signal{}, false
		}
		iface, ok := ds.Body[0].(string)
		if !ok || !strings.HasPrefix(iface, "org.bluez.") {
			return Signal{}, false
		}
		changed, ok := ds.Body[1].(map[string]dbus.Variant)
		if !ok {
			return Signal{}, false
		}
		return Signal{Kind: SignalPropertiesChanged, Path: Path(ds.Path), Interface: iface, Changed: fromDBusProperties(changed)}, true
	}
	return Signal{}, false
}

func fromDBusInterfaces(raw map[string]map[string]dbus.Variant) Interfaces {
	result := make(Interfaces, len(raw))
	for iface, props := range raw {
		result[iface] = fromDBusProperties(props)
	}
	return result
}

func fromDBusProperties(raw map[string]dbus.Variant) Properties {
	result := make(Properties, len(raw))
	for name, v := range raw {
		value := v.Value()
		if p, ok := value.(dbus.ObjectPath); ok {
			value = Path(p)
		}
		result[name] = value
	}
	return result
}

// dbusAgent adapts Agent to org.bluez.Agent1 method set.
type dbusAgent struct {
	agent Agent
	log   *log2.Log
}

func (self dbusAgent) reply(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	self.log.Debugf("agent rejected err=%v", err)
	return dbus.NewError("org.bluez.Error.Rejected", []interface{}{err.Error()})
}

func (self dbusAgent) Release() *dbus.Error {
	self.agent.Release()
	return nil
}

func (self dbusAgent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	return self.reply(self.agent.Authorize(Path(device), ""))
}

func (self dbusAgent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	return self.reply(self.agent.Authorize(Path(device), ""))
}

func (self dbusAgent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	return self.reply(self.agent.Authorize(Path(device), uuid))
}

func (self dbusAgent) Cancel() *dbus.Error {
	self.agent.Cancel()
	return nil
}
