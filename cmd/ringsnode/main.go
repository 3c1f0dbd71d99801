// Ringsnode — overlay node entry point.
//
// Starts a Chord-over-WebRTC overlay participant: mints (or loads) an
// identity, opens a bootstrap websocket listener for future joiners, joins
// an existing ring when -join is given, and runs the stabilization loop,
// the admin JSON-RPC surface, and the message dispatch loop until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/chordmesh/ringsnode/internal/config"
	"github.com/chordmesh/ringsnode/internal/node"
	"github.com/chordmesh/ringsnode/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		util.LogError("config: %v", err)
		os.Exit(1)
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("ringsnode — v%s", version))
	pterm.Println()

	n, err := node.New(ctx, cfg)
	if err != nil {
		util.LogError("failed to build node: %v", err)
		os.Exit(1)
	}

	util.LogInfo("identity: %s", n.Did())
	util.LogInfo("admin rpc listening on %s", n.AdminAddr())
	util.StartStatsReporter(ctx)

	if err := n.Run(ctx); err != nil {
		util.LogError("node exited with error: %v", err)
		os.Exit(1)
	}

	util.LogInfo("shut down cleanly")
}
