// Package objbus is the consumer side of an asynchronous object bus
// (BlueZ over D-Bus in production): object paths with interfaces and
// properties, method calls, add/remove/change signals.
package objbus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/juju/errors"
)

const (
	IfaceObjectManager = "org.freedesktop.DBus.ObjectManager"
	IfaceProperties    = "org.freedesktop.DBus.Properties"
)

var ErrReleased = errors.New("objbus: object handle released")

type Path string

// Properties values are plain Go values, bus specific wrappers already removed.
// Object path values have type Path.
type Properties map[string]interface{}

func (p Properties) String(name string) (string, bool) {
	s, ok := p[name].(string)
	return s, ok
}

func (p Properties) Bool(name string) (bool, bool) {
	b, ok := p[name].(bool)
	return b, ok
}

func (p Properties) Path(name string) (Path, bool) {
	x, ok := p[name].(Path)
	return x, ok
}

// Interfaces maps interface name to its properties.
type Interfaces map[string]Properties

func (is Interfaces) Has(iface string) bool {
	_, ok := is[iface]
	return ok
}

type SignalKind uint8

const (
	SignalInvalid SignalKind = iota
	SignalInterfacesAdded
	SignalInterfacesRemoved
	SignalPropertiesChanged
)

func (k SignalKind) String() string {
	switch k {
	case SignalInterfacesAdded:
		return "InterfacesAdded"
	case SignalInterfacesRemoved:
		return "InterfacesRemoved"
	case SignalPropertiesChanged:
		return "PropertiesChanged"
	}
	return fmt.Sprintf("SignalKind(%d)", uint8(k))
}

type Signal struct {
	Kind SignalKind
	Path Path
	// InterfacesAdded
	Added Interfaces
	// InterfacesRemoved
	Removed []string
	// PropertiesChanged
	Interface string
	Changed   Properties
}

func (s *Signal) String() string {
	return fmt.Sprintf("Signal(%s path=%s)", s.Kind.String(), s.Path)
}

// Agent is local object answering pairing requests from the bus service.
type Agent interface {
	Release()
	// Authorize is asked for pairing confirmation and service access, service="" for pairing.
	Authorize(device Path, service string) error
	Cancel()
}

// Conn is a connection to one bus service.
type Conn interface {
	ManagedObjects(ctx context.Context) (map[Path]Interfaces, error)
	GetAll(ctx context.Context, path Path, iface string) (Properties, error)
	// method is fully qualified, e.g. org.bluez.Device1.Pair
	Call(ctx context.Context, path Path, method string, args ...interface{}) error
	// Subscribe stream ends when ctx is done.
	Subscribe(ctx context.Context) (<-chan Signal, error)
	ExportAgent(path Path, agent Agent) error
	UnexportAgent(path Path) error
	Close() error
}

// Object is a releasable handle to remote object.
type Object struct {
	conn     Conn
	path     Path
	released uint32
}

func NewObject(conn Conn, path Path) *Object {
	return &Object{conn: conn, path: path}
}

func (self *Object) Path() Path { return self.path }

func (self *Object) Call(ctx context.Context, method string, args ...interface{}) error {
	if self.IsReleased() {
		return errors.Trace(ErrReleased)
	}
	return errors.Annotatef(self.conn.Call(ctx, self.path, method, args...), "%s %s", self.path, method)
}

func (self *Object) GetAll(ctx context.Context, iface string) (Properties, error) {
	if self.IsReleased() {
		return nil, errors.Trace(ErrReleased)
	}
	props, err := self.conn.GetAll(ctx, self.path, iface)
	return props, errors.Annotatef(err, "%s GetAll %s", self.path, iface)
}

// Release is idempotent.
func (self *Object) Release() { atomic.StoreUint32(&self.released, 1) }

func (self *Object) IsReleased() bool { return atomic.LoadUint32(&self.released) == 1 }
