// Main, user facing mode of operation: menu on LCD or terminal.
package panel

import (
	"context"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/robot-util/cmd/robot-util/subcmd"
	"github.com/temoto/robot-util/internal/state"
	"github.com/temoto/robot-util/internal/ui"
)

var Mod = subcmd.Mod{Name: "panel", Usage: "run control panel (default)", Main: Main}

func Main(ctx context.Context, config *state.Config) (int, error) {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)

	app, err := ui.NewApp(ctx)
	if err != nil {
		return ui.StatusFailure, errors.Annotate(err, "ui init")
	}
	app.Push(app.MainMenu(ctx))

	subcmd.SdNotify(g.Log, daemon.SdNotifyReady)
	g.Log.Debugf("panel init complete")

	return app.Run(ctx), nil
}
