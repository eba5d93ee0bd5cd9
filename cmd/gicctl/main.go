package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/gic/internal/platform"
)

func usage() {
	fmt.Fprintf(os.Stderr, `gicctl - drive a GICv3 interrupt controller

USAGE:
  gicctl <command> [flags]

COMMANDS:
  sim        Bring up a simulated GIC and exercise SGIs, SPIs and suspend/resume
  inspect    Read a real GIC through /dev/mem and list its redistributors
  platform   Print a platform description as YAML

Run 'gicctl <command> -h' for the flags of each command.
`)
	os.Exit(1)
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadPlatform reads path, or returns the built-in FVP layout when path is
// empty.
func loadPlatform(path string) (platform.Platform, error) {
	if path == "" {
		return platform.FVP(), nil
	}
	return platform.Load(path)
}

func run(args []string) error {
	if len(args) < 2 {
		usage()
	}

	switch args[1] {
	case "sim":
		return runSim(args[2:])
	case "inspect":
		return runInspect(args[2:])
	case "platform":
		return runPlatform(args[2:])
	default:
		usage()
		return nil
	}
}

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gicctl: %v\n", err)
		os.Exit(1)
	}
}
