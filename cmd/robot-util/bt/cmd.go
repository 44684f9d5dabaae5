// Bluetooth console, inspect and pair devices without panel hardware.
package bt

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/robot-util/cmd/robot-util/subcmd"
	"github.com/temoto/robot-util/helpers/cli"
	"github.com/temoto/robot-util/internal/bluetooth"
	"github.com/temoto/robot-util/internal/state"
)

const modName = "bt"

const usage = `commands:
- list            devices with index
- adapters        adapters and discovery state
- pair INDEX|ADDR toggle device pairing
- sync            wait for pending bus signals
- help`

var Mod = subcmd.Mod{Name: modName, Usage: "bluetooth console", Main: Main}

func Main(ctx context.Context, config *state.Config) (int, error) {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)

	r, err := g.Bluetooth()
	if err != nil {
		return 1, errors.Annotate(err, "bluetooth init")
	}
	if r == nil {
		return 1, errors.Errorf("bluetooth is disabled in config")
	}
	if err := r.Sync(ctx); err != nil {
		return 1, err
	}

	g.Log.Debugf("bt console init complete")
	interrupt := func() {
		g.Shutdown(ctx)
		os.Exit(1)
	}
	if err := cli.MainLoop(modName, NewExecutor(ctx, r), newCompleter(), interrupt); err != nil {
		return 1, err
	}
	return 0, nil
}

func newCompleter() cli.Completer {
	return cli.Suggest([]prompt.Suggest{
		{Text: "list", Description: "devices with index"},
		{Text: "adapters", Description: "adapters and discovery state"},
		{Text: "pair", Description: "toggle device pairing"},
		{Text: "sync", Description: "wait for pending bus signals"},
		{Text: "help"},
	})
}

func NewExecutor(ctx context.Context, r *bluetooth.Registry) cli.Executor {
	g := state.GetGlobal(ctx)
	return func(line string) {
		words := strings.Fields(line)
		if len(words) == 0 {
			return
		}
		switch words[0] {
		case "help":
			g.Log.Info(usage)

		case "list", "ls":
			for i, d := range r.Devices() {
				g.Log.Infof("%d %s", i, d.String())
			}

		case "adapters":
			for _, a := range r.Adapters() {
				g.Log.Infof("%s address=%s powered=%t discovering=%t started=%t",
					a.Path(), a.Address(), a.Powered(), a.Discovering(), a.StartedDiscovery())
			}

		case "pair":
			if len(words) != 2 {
				g.Log.Errorf("usage: pair INDEX|ADDR")
				return
			}
			d, err := findDevice(r.Devices(), words[1])
			if err != nil {
				g.Log.Error(err)
				return
			}
			if err := r.TogglePair(ctx, d); err != nil {
				g.Log.Error(errors.ErrorStack(err))
				return
			}
			g.Log.Infof("toggle pair sent %s", d.String())

		case "sync":
			if err := r.Sync(ctx); err != nil {
				g.Log.Error(err)
			}

		default:
			g.Log.Errorf("unknown command='%s', try help", words[0])
		}
	}
}

// findDevice accepts index in snapshot, address or object path.
func findDevice(devices []*bluetooth.Device, key string) (*bluetooth.Device, error) {
	if i, err := strconv.Atoi(key); err == nil {
		if i < 0 || i >= len(devices) {
			return nil, fmt.Errorf("device index=%d out of range, devices=%d", i, len(devices))
		}
		return devices[i], nil
	}
	for _, d := range devices {
		if strings.EqualFold(d.Address(), key) || string(d.Path()) == key {
			return d, nil
		}
	}
	return nil, errors.NotFoundf("device=%s", key)
}
