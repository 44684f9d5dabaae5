package tele

import (
	"context"
	"sync"

	"github.com/temoto/robot-util/log2"
)

// Transporter contract:
// - Init fails only with invalid config, ignores network errors
// - Send* return false when message was not accepted and should be retried later
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, config Config, willPayload []byte) error
	SendState(payload []byte) bool
	SendDevices(payload []byte) bool
	SendTelemetry(payload []byte) bool
	Close()
}

// MockTransport records payloads. Fail makes SendTelemetry reject messages.
type MockTransport struct {
	mu        sync.Mutex
	Will      []byte
	States    [][]byte
	Devices   [][]byte
	Telemetry chan []byte
	Fail      bool
	Closed    bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{Telemetry: make(chan []byte, 16)}
}

func (self *MockTransport) Init(ctx context.Context, log *log2.Log, config Config, willPayload []byte) error {
	self.mu.Lock()
	self.Will = willPayload
	self.mu.Unlock()
	return nil
}

func (self *MockTransport) SendState(payload []byte) bool {
	self.mu.Lock()
	self.States = append(self.States, payload)
	self.mu.Unlock()
	return true
}

func (self *MockTransport) SendDevices(payload []byte) bool {
	self.mu.Lock()
	self.Devices = append(self.Devices, payload)
	self.mu.Unlock()
	return true
}

func (self *MockTransport) SendTelemetry(payload []byte) bool {
	self.mu.Lock()
	fail := self.Fail
	self.mu.Unlock()
	if fail {
		return false
	}
	self.Telemetry <- payload
	return true
}

func (self *MockTransport) SetFail(b bool) {
	self.mu.Lock()
	self.Fail = b
	self.mu.Unlock()
}

func (self *MockTransport) StatesCopy() [][]byte {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([][]byte(nil), self.States...)
}

func (self *MockTransport) Close() {
	self.mu.Lock()
	self.Closed = true
	self.mu.Unlock()
}
