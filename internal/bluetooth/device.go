package bluetooth

import (
	"fmt"
	"sync"

	"github.com/temoto/robot-util/internal/objbus"
)

const (
	IfaceAdapter      = "org.bluez.Adapter1"
	IfaceDevice       = "org.bluez.Device1"
	IfaceAgentManager = "org.bluez.AgentManager1"
)

// Device is cached view of org.bluez.Device1 object.
// Fields change on PropertiesChanged, read with accessors.
type Device struct {
	obj *objbus.Object

	mu        sync.Mutex
	adapter   objbus.Path
	name      string
	hasName   bool
	alias     string
	address   string
	paired    bool
	connected bool
}

func newDevice(obj *objbus.Object, props objbus.Properties) *Device {
	d := &Device{obj: obj}
	d.update(props)
	return d
}

func (self *Device) update(props objbus.Properties) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if p, ok := props.Path("Adapter"); ok {
		self.adapter = p
	}
	if s, ok := props.String("Name"); ok {
		self.name, self.hasName = s, s != ""
	}
	if s, ok := props.String("Alias"); ok {
		self.alias = s
	}
	if s, ok := props.String("Address"); ok {
		self.address = s
	}
	if b, ok := props.Bool("Paired"); ok {
		self.paired = b
	}
	if b, ok := props.Bool("Connected"); ok {
		self.connected = b
	}
}

func (self *Device) Path() objbus.Path { return self.obj.Path() }

func (self *Device) Adapter() objbus.Path {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.adapter
}

// Name is false when device did not report Name property.
func (self *Device) Name() (string, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.name, self.hasName
}

func (self *Device) Alias() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.alias
}

func (self *Device) Address() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.address
}

func (self *Device) Paired() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.paired
}

func (self *Device) Connected() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.connected
}

// Released reports whether registry dropped this record.
func (self *Device) Released() bool { return self.obj.IsReleased() }

func (self *Device) String() string {
	name, _ := self.Name()
	return fmt.Sprintf("Device(path=%s address=%s name=%q paired=%t)", self.Path(), self.Address(), name, self.Paired())
}

type Adapter struct {
	obj *objbus.Object

	mu               sync.Mutex
	address          string
	powered          bool
	discovering      bool
	startedDiscovery bool
}

func newAdapter(obj *objbus.Object, props objbus.Properties) *Adapter {
	a := &Adapter{obj: obj}
	a.update(props)
	return a
}

func (self *Adapter) update(props objbus.Properties) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if s, ok := props.String("Address"); ok {
		self.address = s
	}
	if b, ok := props.Bool("Powered"); ok {
		self.powered = b
	}
	if b, ok := props.Bool("Discovering"); ok {
		self.discovering = b
	}
}

func (self *Adapter) Path() objbus.Path { return self.obj.Path() }

func (self *Adapter) Address() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.address
}

func (self *Adapter) Powered() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.powered
}

func (self *Adapter) Discovering() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.discovering
}

// StartedDiscovery reports whether this registry started discovery on adapter.
func (self *Adapter) StartedDiscovery() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.startedDiscovery
}

func (self *Adapter) setStartedDiscovery(b bool) {
	self.mu.Lock()
	self.startedDiscovery = b
	self.mu.Unlock()
}

func (self *Adapter) Released() bool { return self.obj.IsReleased() }

// AgentManager is org.bluez.AgentManager1 object, usually one per host.
type AgentManager struct {
	obj        *objbus.Object
	mu         sync.Mutex
	registered bool
}

func (self *AgentManager) Path() objbus.Path { return self.obj.Path() }

// Registered reports whether local agent was registered with this manager.
func (self *AgentManager) Registered() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.registered
}

func (self *AgentManager) setRegistered(b bool) {
	self.mu.Lock()
	self.registered = b
	self.mu.Unlock()
}

func (self *AgentManager) Released() bool { return self.obj.IsReleased() }
