// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"ducker/cmd"
	"ducker/internal/app"
	applog "ducker/internal/log"
	"ducker/pkg/build"
)

// main is the entry point for the ducker.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands (list, check, simulate) if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Poll the mic and step the routing volumes every tick
//   - Publish status to the monitor and transports
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop polling, then close transports, device and mic
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds carry no ldflags and run with the default info.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v, using development build info", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if opts == nil {
		return // --help or --version
	}

	if opts.Config != nil {
		if err := applog.SetLevelFromString(opts.Config.EffectiveLogLevel()); err != nil {
			applog.Fatalf("%v", err)
		}
	}

	// Limit OS threads: one for the PortAudio callback and the poller,
	// one for the UI and I/O.
	runtime.GOMAXPROCS(2)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = execute(ctx, opts)
	stop()
	if err != nil {
		applog.Fatalf("%v", err)
	}
}

func execute(ctx context.Context, opts *cmd.Options) error {
	switch opts.Command {
	case cmd.CommandList:
		return app.ListDevices(os.Stdout, opts.Pick)

	case cmd.CommandCheck:
		return app.Check(os.Stdout, opts.Config)

	case cmd.CommandSimulate:
		_, err := app.Simulate(ctx, os.Stdout, opts.Config, opts.WAVPath)
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	info := build.GetBuildFlags()
	applog.Infof("%s", info)
	if !opts.Headless {
		fmt.Printf("TUI Mode '%s --help' for usage information.\n", info.Name)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	// Run returns once the monitor quits or a termination signal arrives,
	// after every component has been stopped.
	return app.Run(ctx, opts.Config, app.Options{Headless: opts.Headless})
}
