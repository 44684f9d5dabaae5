package tele

import (
	"context"

	"github.com/temoto/robot-util/log2"
)

type State string

const (
	StateInvalid State = ""
	StateBoot    State = "boot"
	StateRunning State = "running"
	StateExited  State = "exited"
)

type DeviceInfo struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Paired  bool   `json:"paired"`
}

type Config struct {
	Enable       bool   `hcl:"enable"`
	LogDebug     bool   `hcl:"log_debug"`
	MqttBroker   string `hcl:"mqtt_broker"`
	MqttPassword string `hcl:"mqtt_password"`
	ClientID     string `hcl:"client_id"`
	TopicPrefix  string `hcl:"topic_prefix"`
	KeepaliveSec int    `hcl:"keepalive_sec"`
	PersistPath  string `hcl:"persist_path"`
	BuildVersion string `hcl:"-"`
}

// Teler contract:
// - Init fails only with invalid config or storage, network issues ignored
// - Error is persisted and delivered at least once in background
// - State and Devices are best effort, last value retained by broker
type Teler interface {
	Init(ctx context.Context, log *log2.Log, config Config) error
	Close()
	Error(err error)
	State(s State, status int)
	Devices(ds []DeviceInfo)
}

type Noop struct{}

var _ Teler = Noop{}

func (Noop) Init(context.Context, *log2.Log, Config) error { return nil }
func (Noop) Close()                                          {}
func (Noop) Error(error)                                     {}
func (Noop) State(State, int)                                {}
func (Noop) Devices([]DeviceInfo)                            {}
