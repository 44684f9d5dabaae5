package types

import (
	"sync"
)

const MockBackendContextKey = "test/mock-backend"

// MockBackend is scripted Backend for tests.
// Inputs are returned by Poll in order, then Poll reports no sample.
type MockBackend struct {
	sync.Mutex
	Columns  int
	Rows     int
	Glyph    string
	Inputs   []InputEvent
	PollErr  error
	SizeErr  error
	Frames   [][]string
	Actives  []int
	Light    []bool
	Closed   bool
	CloseErr error
	OnRender func(lines []string, active int) error
}

var _ Backend = &MockBackend{}

func NewMockBackend(columns, rows int) *MockBackend {
	return &MockBackend{Columns: columns, Rows: rows}
}

func (self *MockBackend) Push(events ...InputEvent) {
	self.Lock()
	self.Inputs = append(self.Inputs, events...)
	self.Unlock()
}

func (self *MockBackend) Poll() (InputEvent, bool, error) {
	self.Lock()
	defer self.Unlock()
	if self.PollErr != nil {
		return InputEvent{}, false, self.PollErr
	}
	if len(self.Inputs) == 0 {
		return InputEvent{}, false, nil
	}
	e := self.Inputs[0]
	self.Inputs = self.Inputs[1:]
	return e, true, nil
}

func (self *MockBackend) String() string { return "mock" }

func (self *MockBackend) ViewportSize() (int, int, error) {
	self.Lock()
	defer self.Unlock()
	return self.Columns, self.Rows, self.SizeErr
}

func (self *MockBackend) Render(lines []string, active int) error {
	self.Lock()
	frame := append([]string(nil), lines...)
	self.Frames = append(self.Frames, frame)
	self.Actives = append(self.Actives, active)
	f := self.OnRender
	self.Unlock()
	if f != nil {
		return f(frame, active)
	}
	return nil
}

// LastFrame returns nil if nothing was rendered.
func (self *MockBackend) LastFrame() []string {
	self.Lock()
	defer self.Unlock()
	if len(self.Frames) == 0 {
		return nil
	}
	return self.Frames[len(self.Frames)-1]
}

func (self *MockBackend) CursorGlyph() string {
	if self.Glyph == "" {
		return "<"
	}
	return self.Glyph
}

func (self *MockBackend) SetBacklight(on bool) error {
	self.Lock()
	self.Light = append(self.Light, on)
	self.Unlock()
	return nil
}

func (self *MockBackend) Close() error {
	self.Lock()
	self.Closed = true
	err := self.CloseErr
	self.Unlock()
	return err
}
