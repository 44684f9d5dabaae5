package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	"github.com/temoto/robot-util/internal/persist"
	"github.com/temoto/robot-util/internal/tele"
	"github.com/temoto/robot-util/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, context.Context)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, ctx context.Context) {
			g := GetGlobal(ctx)
			assert.Equal(t, DefaultBackend, g.Config.Backend)
			assert.Equal(t, DefaultTickMs, g.Config.UI.TickMs)
			assert.Equal(t, DefaultCursor, g.Config.UI.Cursor)
			assert.Equal(t, DefaultServiceName, g.Config.Bluetooth.Service)
			assert.Equal(t, DefaultPersistRoot, g.Config.Persist.Root)
			assert.Equal(t, "tmp-robot-util/tele", g.Config.Tele.PersistPath)
			assert.True(t, g.Config.Bluetooth.Enable)
			assert.True(t, g.Config.Bluetooth.Discovery)
			assert.True(t, g.Config.Bluetooth.Agent.Enable)
			assert.True(t, g.Config.Hardware.Encoder.Enable)
			assert.Nil(t, g.Updater())
		}, ""},

		{"hardware", `
backend = "terminal"
hardware {
	gpio_chip = "/dev/gpiochip1"
	encoder { a = 5 b = 6 sw = 13 invert_button = true }
	lcd { i2c_bus = "2" address = 63 width = 16 height = 2 codepage = "windows-1251" }
}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				hw := &g.Config.Hardware
				assert.Equal(t, "terminal", g.Config.Backend)
				assert.Equal(t, "/dev/gpiochip1", hw.GpioChip)
				assert.Equal(t, uint32(5), hw.Encoder.A)
				assert.Equal(t, uint32(6), hw.Encoder.B)
				assert.Equal(t, uint32(13), hw.Encoder.SW)
				assert.True(t, hw.Encoder.InvertButton)
				assert.Equal(t, "2", hw.LCD.I2CBus)
				assert.Equal(t, 63, hw.LCD.Address)
				assert.Equal(t, 16, hw.LCD.Width)
				assert.Equal(t, 2, hw.LCD.Height)
				assert.Equal(t, "windows-1251", hw.LCD.Codepage)
			},
			"",
		},

		{"bluetooth", `
bluetooth {
	enable = false
	call_timeout_ms = 700
	agent { path = "/test/agent" capability = "DisplayOnly" }
}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				bt := &g.Config.Bluetooth
				assert.False(t, bt.Enable)
				assert.Equal(t, 700, bt.CallTimeoutMs)
				assert.Equal(t, "/test/agent", bt.Agent.Path)
				assert.Equal(t, "DisplayOnly", bt.Agent.Capability)
				r, err := g.Bluetooth()
				assert.NoError(t, err)
				assert.Nil(t, r)
			},
			"",
		},

		{"ui-update", `
ui { tick_ms = 20 idle_backlight_sec = 60 cursor = "*" }
update { url = "http://deploy.local/update" token = "t" timeout_sec = 3 }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 20, g.Config.UI.TickMs)
				assert.Equal(t, 60, g.Config.UI.IdleBacklightSec)
				assert.Equal(t, "*", g.Config.UI.Cursor)
				assert.Equal(t, "http://deploy.local/update", g.Config.Update.URL)
				assert.Equal(t, 3, g.Config.Update.TimeoutSec)
				assert.True(t, g.Updater().Enabled())
			},
			"",
		},

		{"tele", `
persist { root = "/var/lib/robot" }
tele { mqtt_broker = "tcp://broker:1883" client_id = "r2" keepalive_sec = 30 }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, "tcp://broker:1883", g.Config.Tele.MqttBroker)
				assert.Equal(t, "r2", g.Config.Tele.ClientID)
				assert.Equal(t, 30, g.Config.Tele.KeepaliveSec)
				assert.Equal(t, "/var/lib/robot/tele", g.Config.Tele.PersistPath)
				assert.Equal(t, "test", g.Config.Tele.BuildVersion)
			},
			"",
		},

		{"include-normalize", `
ui { tick_ms = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "tick-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.UI.TickMs)
			}, ""},

		{"include-overwrites", `
ui { tick_ms = 1 }
include "tick-7" {}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.UI.TickMs)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-tick", `ui { tick_ms = -1 }`, nil, "ui.tick_ms=-1"},
		{"error-timeout", `bluetooth { call_timeout_ms = -5 }`, nil, "bluetooth.call_timeout_ms=-5"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)

			// duplicate of state_new.NewContext, import cycle
			g := &Global{
				Alive:        alive.NewAlive(),
				BuildVersion: "test",
				Log:          log,
				Tele:         tele.Noop{},
			}
			ctx := context.Background()
			ctx = context.WithValue(ctx, log2.ContextKey, log)
			ctx = context.WithValue(ctx, ContextKey, g)

			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"tick-7":       "ui{tick_ms=7}",
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, ctx)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestStopWait(t *testing.T) {
	t.Parallel()

	g := &Global{Alive: alive.NewAlive(), Log: log2.NewTest(t, log2.LDebug)}
	g.Alive.Add(1)
	go func() {
		<-g.Alive.StopChan()
		g.Alive.Done()
	}()
	assert.True(t, g.StopWait(time.Second))
}

func TestGetGlobalPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { GetGlobal(context.Background()) })
	ctx := context.WithValue(context.Background(), ContextKey, "wrong")
	assert.Panics(t, func() { GetGlobal(ctx) })
}

type garbageState struct{}

func (garbageState) MarshalBinary() ([]byte, error) { return []byte("not json"), nil }
func (garbageState) UnmarshalBinary([]byte) error   { return nil }

func TestNameCacheFallback(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	root := t.TempDir()
	var p persist.Persist
	require.NoError(t, p.Init(persist.NamesTag, garbageState{}, root, log))
	require.NoError(t, p.Store())

	var reported []error
	g := &Global{Alive: alive.NewAlive(), Log: log, Tele: tele.Noop{}, Config: &Config{}}
	g.Config.Persist.Root = root
	g.Log.SetErrorFunc(func(e error) { reported = append(reported, e) })

	names := g.NameCache()
	require.NotNil(t, names)
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "persist.root")
	changed, err := names.Remember("AA:BB", "speaker")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Same(t, names, g.NameCache())
}
