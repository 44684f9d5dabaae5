// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"

	"github.com/temoto/alive/v2"
	"github.com/temoto/robot-util/internal/objbus"
	"github.com/temoto/robot-util/internal/state"
	"github.com/temoto/robot-util/internal/tele"
	"github.com/temoto/robot-util/internal/types"
	"github.com/temoto/robot-util/log2"
)

func NewContext(log *log2.Log, teler tele.Teler) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

// NewTestContext builds Global over in-memory object bus and 20x4 mock backend.
// Persist root defaults to test temp dir.
func NewTestContext(t testing.TB, buildVersion string, confString string) (context.Context, *state.Global) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("robot_util_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, tele.Noop{})
	g.BuildVersion = buildVersion
	cfg := state.MustReadConfig(log, fs, "test-inline")
	if cfg.Persist.Root == "" {
		cfg.Persist.Root = t.TempDir()
	}
	g.MustInit(ctx, cfg)

	bus := objbus.NewMock()
	g.Hardware.Bus.Conn = bus
	ctx = context.WithValue(ctx, objbus.MockContextKey, bus)

	b := types.NewMockBackend(20, 4)
	g.Hardware.Backend.B = b
	ctx = context.WithValue(ctx, types.MockBackendContextKey, b)

	return ctx, g
}
