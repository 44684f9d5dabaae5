package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/robot-util/cmd/robot-util/bt"
	"github.com/temoto/robot-util/cmd/robot-util/panel"
	"github.com/temoto/robot-util/cmd/robot-util/subcmd"
	"github.com/temoto/robot-util/internal/state"
	state_new "github.com/temoto/robot-util/internal/state/new"
	"github.com/temoto/robot-util/internal/tele"
	"github.com/temoto/robot-util/log2"
)

var log = log2.NewStderr(log2.LDebug)

// set by build flags -X main.BuildVersion=
var BuildVersion string = "unknown"

var modules = []subcmd.Mod{
	panel.Mod,
	bt.Mod,
}

const shutdownTimeout = 5 * time.Second

func main() {
	flagset := flag.NewFlagSet("robot-util", flag.ExitOnError)
	flagConfig := flagset.String("config", state.DefaultConfigPath, "")
	flagVersion := flagset.Bool("version", false, "print build version and exit")
	flagset.Usage = func() {
		usage := "Usage: robot-util [options] [command]\n\nCommands:\n"
		for _, m := range modules {
			usage += fmt.Sprintf("  %-8s %s\n", m.Name, m.Usage)
		}
		fmt.Fprint(flagset.Output(), usage+"\nOptions:\n")
		flagset.PrintDefaults()
	}
	_ = flagset.Parse(os.Args[1:])

	if *flagVersion {
		fmt.Fprintln(os.Stdout, BuildVersion)
		os.Exit(0)
	}

	command := flagset.Arg(0)
	if command == "" {
		command = panel.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify(log, "start") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	ctx, g := state_new.NewContext(log, tele.New())
	g.BuildVersion = BuildVersion
	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if config.Update.Token == "" {
		config.Update.Token = strings.TrimSpace(os.Getenv("AUTH_TOKEN"))
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigch
		log.Infof("signal=%v, stopping", s)
		g.Stop()
	}()

	status, err := mod.Main(ctx, config)
	if err != nil {
		g.Error(errors.Annotatef(err, "command=%s", mod.Name))
		if status == 0 {
			status = 1
		}
	}

	if !g.StopWait(shutdownTimeout) {
		log.Errorf("background tasks did not finish in %v", shutdownTimeout)
	}
	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	g.Shutdown(sctx)
	cancel()
	os.Exit(status)
}
