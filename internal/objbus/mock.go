package objbus

import (
	"context"
	"sync"

	"github.com/juju/errors"
)

const mockSignalBuffer = 256

type MockCall struct {
	Path   Path
	Method string
	Args   []interface{}
}

// Mock is in-memory Conn for tests.
// Emit and the Object helpers deliver signals synchronously into subscriber buffers.
type Mock struct {
	mu      sync.Mutex
	objects map[Path]Interfaces
	subs    map[chan Signal]struct{}
	calls   []MockCall
	agents  map[Path]Agent
	closed  bool
	getAlls int

	// CallErr maps method to error returned by Call.
	CallErr map[string]error
	// CallBlock methods wait until ctx is done.
	CallBlock map[string]bool
	// OnCall is invoked after recording, outside of lock.
	OnCall       func(c MockCall)
	GetAllErr    error
	SubscribeErr error
}

var _ Conn = &Mock{}

const MockContextKey = "test/objbus-mock"

func NewMock() *Mock {
	return &Mock{
		objects:   make(map[Path]Interfaces),
		subs:      make(map[chan Signal]struct{}),
		agents:    make(map[Path]Agent),
		CallErr:   make(map[string]error),
		CallBlock: make(map[string]bool),
	}
}

func (self *Mock) ManagedObjects(ctx context.Context) (map[Path]Interfaces, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	result := make(map[Path]Interfaces, len(self.objects))
	for path, ifaces := range self.objects {
		result[path] = copyInterfaces(ifaces)
	}
	return result, nil
}

func (self *Mock) GetAll(ctx context.Context, path Path, iface string) (Properties, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.getAlls++
	if self.GetAllErr != nil {
		return nil, self.GetAllErr
	}
	ifaces, ok := self.objects[path]
	if !ok {
		return nil, errors.NotFoundf("object path=%s", path)
	}
	props, ok := ifaces[iface]
	if !ok {
		return nil, errors.NotFoundf("interface path=%s iface=%s", path, iface)
	}
	return copyProperties(props), nil
}

func (self *Mock) Call(ctx context.Context, path Path, method string, args ...interface{}) error {
	c := MockCall{Path: path, Method: method, Args: args}
	self.mu.Lock()
	self.calls = append(self.calls, c)
	err := self.CallErr[method]
	block := self.CallBlock[method]
	onCall := self.OnCall
	self.mu.Unlock()

	if onCall != nil {
		onCall(c)
	}
	if block {
		<-ctx.Done()
		return errors.Trace(ctx.Err())
	}
	return err
}

func (self *Mock) Subscribe(ctx context.Context) (<-chan Signal, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.SubscribeErr != nil {
		return nil, self.SubscribeErr
	}
	if self.closed {
		return nil, errors.Errorf("objbus mock closed")
	}
	ch := make(chan Signal, mockSignalBuffer)
	self.subs[ch] = struct{}{}
	go func() {
		<-ctx.Done()
		self.mu.Lock()
		delete(self.subs, ch)
		close(ch)
		self.mu.Unlock()
	}()
	return ch, nil
}

func (self *Mock) ExportAgent(path Path, agent Agent) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if _, ok := self.agents[path]; ok {
		return errors.AlreadyExistsf("agent path=%s", path)
	}
	self.agents[path] = agent
	return nil
}

func (self *Mock) UnexportAgent(path Path) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	delete(self.agents, path)
	return nil
}

func (self *Mock) Close() error {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
	return nil
}

func (self *Mock) Closed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closed
}

// Emit delivers s to current subscribers. Panics if subscriber buffer is full.
func (self *Mock) Emit(s Signal) {
	self.mu.Lock()
	defer self.mu.Unlock()
	for ch := range self.subs {
		select {
		case ch <- s:
		default:
			panic("code error objbus.Mock subscriber buffer full")
		}
	}
}

// AddObject stores interfaces (merging with existing) and emits InterfacesAdded.
func (self *Mock) AddObject(path Path, ifaces Interfaces) {
	self.mu.Lock()
	current, ok := self.objects[path]
	if !ok {
		current = make(Interfaces)
		self.objects[path] = current
	}
	for name, props := range ifaces {
		current[name] = copyProperties(props)
	}
	self.mu.Unlock()
	self.Emit(Signal{Kind: SignalInterfacesAdded, Path: path, Added: copyInterfaces(ifaces)})
}

// RemoveObject drops interfaces (all when none given) and emits InterfacesRemoved.
func (self *Mock) RemoveObject(path Path, ifaces ...string) {
	self.mu.Lock()
	current := self.objects[path]
	if len(ifaces) == 0 {
		for name := range current {
			ifaces = append(ifaces, name)
		}
	}
	for _, name := range ifaces {
		delete(current, name)
	}
	if len(current) == 0 {
		delete(self.objects, path)
	}
	self.mu.Unlock()
	self.Emit(Signal{Kind: SignalInterfacesRemoved, Path: path, Removed: ifaces})
}

// SetProperties updates stored values and emits PropertiesChanged.
func (self *Mock) SetProperties(path Path, iface string, changed Properties) {
	self.mu.Lock()
	if ifaces, ok := self.objects[path]; ok {
		if props, ok := ifaces[iface]; ok {
			for k, v := range changed {
				props[k] = v
			}
		}
	}
	self.mu.Unlock()
	self.Emit(Signal{Kind: SignalPropertiesChanged, Path: path, Interface: iface, Changed: copyProperties(changed)})
}

// Seed stores object without emitting signal, as if it existed before subscription.
func (self *Mock) Seed(path Path, ifaces Interfaces) {
	self.mu.Lock()
	self.objects[path] = copyInterfaces(ifaces)
	self.mu.Unlock()
}

func (self *Mock) Calls() []MockCall {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]MockCall(nil), self.calls...)
}

// CallsTo filters recorded calls by method.
func (self *Mock) CallsTo(method string) []MockCall {
	result := []MockCall{}
	for _, c := range self.Calls() {
		if c.Method == method {
			result = append(result, c)
		}
	}
	return result
}

func (self *Mock) GetAllCount() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.getAlls
}

func (self *Mock) Agent(path Path) Agent {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.agents[path]
}

func (self *Mock) Subscribers() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.subs)
}

func copyProperties(p Properties) Properties {
	if p == nil {
		return nil
	}
	result := make(Properties, len(p))
	for k, v := range p {
		result[k] = v
	}
	return result
}

func copyInterfaces(is Interfaces) Interfaces {
	result := make(Interfaces, len(is))
	for k, v := range is {
		result[k] = copyProperties(v)
	}
	return result
}
