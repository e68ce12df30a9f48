// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bridge-foundation/bridge/bridge/schema"
)

// forwardTimeout bounds the synchronous forward to the peer. The file
// write is the durable record; HTTP forwarding only accelerates
// pickup, so a slow peer must not stall the caller.
const forwardTimeout = 3 * time.Second

// Deliverer writes the canonical message file and forwards approved
// executor-bound messages to the peer service.
type Deliverer struct {
	dataDir string
	peerURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewDeliverer creates a deliverer writing under dataDir and
// forwarding to the peer base URL.
func NewDeliverer(dataDir, peerURL string, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		dataDir: dataDir,
		peerURL: peerURL,
		client:  &http.Client{Timeout: forwardTimeout},
		logger:  logger,
	}
}

// WriteFile renders the message in the wire format and atomically
// replaces the recipient's message file. Unapproved messages get the
// pending_ prefix so the peer's file watcher ignores them.
func (d *Deliverer) WriteFile(msg schema.Message, approved bool) error {
	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating message dir: %w", err)
	}

	name := fmt.Sprintf("to_%s.txt", msg.Recipient)
	if !approved {
		name = "pending_" + name
	}
	path := filepath.Join(d.dataDir, name)

	// Atomic replace: a reader never observes a partial file. The
	// temp name is unique per call so concurrent sends to the same
	// recipient cannot interleave writes; the last rename wins.
	tmp, err := os.CreateTemp(d.dataDir, name+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp message file: %w", err)
	}
	if _, err := tmp.Write([]byte(schema.Format(msg))); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing message file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing message file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("setting message file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing message file: %w", err)
	}

	d.logger.Info("message file written", "path", path, "message_id", msg.ID, "approved", approved)
	return nil
}

// forwardPayload is the JSON body posted to the peer's receive
// endpoint.
type forwardPayload struct {
	ID        int64         `json:"id,omitempty"`
	Timestamp string        `json:"timestamp"`
	Role      schema.Role   `json:"role"`
	Intent    schema.Intent `json:"intent"`
	Content   string        `json:"content"`
}

// Forward posts the message to the peer's receive endpoint. Failure
// is logged and swallowed: the message file already landed and the
// peer's watcher will pick it up.
func (d *Deliverer) Forward(ctx context.Context, msg schema.Message) {
	body, err := json.Marshal(forwardPayload{
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
		Role:      msg.Role,
		Intent:    msg.Intent,
		Content:   msg.Content,
	})
	if err != nil {
		d.logger.Warn("forward encode failed", "error", err, "message_id", msg.ID)
		return
	}

	url := d.peerURL + "/api/receive_message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("forward request failed", "error", err, "message_id", msg.ID)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("forward to peer failed", "error", err, "message_id", msg.ID)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("forward to peer rejected", "status", resp.StatusCode, "message_id", msg.ID)
		return
	}
	d.logger.Info("message forwarded to peer", "message_id", msg.ID)
}
