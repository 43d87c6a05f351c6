// dolphind - dolphin progression daemon and sub-GHz receive scene
//
//	dolphind run             Run the daemon: actor, HTTP API, metrics, health
//	dolphind stats           Print the saved progression
//	dolphind deed <name>     Record a deed through the running daemon
//	dolphind level-up        Apply a pending level up
//	dolphind simulate        Replay captures through the receiver scene
//	dolphind config          Print, create or check the configuration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "run":
		err = cmdRun(ctx, rest, stdout)
	case "stats":
		err = cmdStats(ctx, rest, stdout)
	case "deed":
		err = cmdDeed(ctx, rest, stdout)
	case "level-up":
		err = cmdLevelUp(ctx, rest, stdout)
	case "deeds":
		cmdDeeds(stdout)
	case "simulate":
		err = cmdSimulate(ctx, rest, stdout)
	case "config":
		err = cmdConfig(rest, stdout)
	case "version":
		fmt.Fprintf(stdout, "dolphind %s\n", version)
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		usage(stderr)
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `dolphind - dolphin progression daemon

USAGE:
    dolphind <command> [options]

COMMANDS:
    run [-config path]                Run the daemon until SIGINT/SIGTERM
    stats [-config path] [-json]      Print the saved progression
    deed [-addr host:port] <name>...  Record deeds through the running daemon
    level-up [-addr host:port]        Apply a pending level up
    deeds                             List known deeds and their weights
    simulate -captures file [-config path] [-hopper] [-select n]
                                      Replay captures through the receiver scene
    config [show|init|check] [-config path]
                                      Print, create or validate the configuration
    version                           Print the version
    help                              Show this help message

ENVIRONMENT:
    DOLPHIND_DATA_DIR                 Base directory for state and config
    DOLPHIND_<SECTION>_<KEY>          Override any config key, e.g.
                                      DOLPHIND_STORAGE_TYPE=sqlite
                                      DOLPHIND_LOG_LEVEL=debug

The daemon serves /metrics, /livez, /readyz, /healthz and the /v1 API on
the configured HTTP address.`)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
