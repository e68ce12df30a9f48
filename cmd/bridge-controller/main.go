// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// bridge-controller runs the controller's end of the bridge: the
// HTTP API on the controller port, the inbound file watcher, and the
// operator control socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bridge-foundation/bridge/bridge"
	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/clock"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("bridge-controller", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (or BRIDGE_CONFIG)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if configPath == "" {
		configPath = os.Getenv("BRIDGE_CONFIG")
	}

	config := bridge.Config{Identity: schema.Controller}
	if configPath != "" {
		loaded, err := bridge.LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
	}
	if config.Identity != schema.Controller {
		return fmt.Errorf("config identity is %q, this binary runs the controller", config.Identity)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return bridge.Run(ctx, config, bridge.NewLogger(), clock.Real())
}
