// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"

	"github.com/bridge-foundation/bridge/lib/clock"
)

// Run wires a service from its configuration and serves all three
// surfaces (HTTP API, control socket, file watcher) until the context
// is cancelled or one of them fails. The first failure cancels the
// others.
func Run(ctx context.Context, config Config, logger *slog.Logger, clk clock.Clock) error {
	if err := config.applyDefaults(); err != nil {
		return err
	}

	service, err := NewService(config, logger, clk)
	if err != nil {
		return err
	}
	logger.Info("bridge starting",
		"identity", config.Identity,
		"listen_addr", config.ListenAddr,
		"peer_url", config.PeerURL,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	go func() {
		errs <- NewHTTPServer(config.ListenAddr, service.Handler(), logger).Serve(ctx)
	}()
	go func() {
		errs <- NewControlSocket(service).Serve(ctx)
	}()
	go func() {
		errs <- NewWatcher(service).Run(ctx)
	}()

	var first error
	for range 3 {
		if err := <-errs; err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}
