// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/clock"
)

// pollInterval is the watcher's detection-latency upper bound:
// externally dropped messages are noticed within one interval.
const pollInterval = 2 * time.Second

// Watcher polls this participant's inbound message file and routes
// new content into the receive path. File delivery is the durable
// channel; the watcher makes it work even when the peer's HTTP
// forward never arrived.
type Watcher struct {
	service *Service
	path    string
	clock   clock.Clock
	logger  *slog.Logger

	lastModTime time.Time
}

// NewWatcher creates a watcher for the service's inbound message file
// (to_<identity>.txt under the data directory).
func NewWatcher(service *Service) *Watcher {
	name := fmt.Sprintf("to_%s.txt", service.identity)
	return &Watcher{
		service: service,
		path:    filepath.Join(service.config.DataDir, name),
		clock:   service.clock,
		logger:  service.logger,
	}
}

// Run polls until the context is cancelled. Poll errors are logged
// and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.Info("file watcher started", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Warn("watcher poll failed", "error", err)
			}
		}
	}
}

// poll checks the inbound file's modification time and hands changed
// content to the service.
func (w *Watcher) poll(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", w.path, err)
	}
	if info.ModTime().Equal(w.lastModTime) {
		return nil
	}
	w.lastModTime = info.ModTime()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.path, err)
	}
	msg, err := schema.Parse(string(data))
	if err != nil {
		return fmt.Errorf("parsing inbound message: %w", err)
	}

	w.logger.Info("inbound message file changed", "message_id", msg.ID)
	return w.service.Receive(ctx, ReceiveRequest{
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
		Role:      msg.Role,
		Intent:    msg.Intent,
		Content:   msg.Content,
	})
}
