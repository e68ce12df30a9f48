// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/codec"
)

// Control socket protocol limits. A well-behaved client sends its
// request immediately after connecting.
const (
	socketReadTimeout  = 30 * time.Second
	socketWriteTimeout = 10 * time.Second
	maxSocketRequest   = 1024 * 1024
)

// socketResponse is the envelope for every control socket reply.
type socketResponse struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// ControlSocket serves operator tooling over a Unix socket: one CBOR
// request per connection, one CBOR response back. The actions mirror
// the HTTP reporting and decision endpoints so an operator can drive
// approvals without touching the HTTP surface.
type ControlSocket struct {
	service *Service
	path    string
	logger  *slog.Logger

	// active tracks in-flight connections so Serve can drain them
	// before returning.
	active sync.WaitGroup
}

// NewControlSocket creates the control socket for a service, using
// the configured socket path.
func NewControlSocket(service *Service) *ControlSocket {
	return &ControlSocket{
		service: service,
		path:    service.config.SocketPath,
		logger:  service.logger,
	}
}

// Serve listens on the Unix socket until the context is cancelled. A
// stale socket file from a previous run is removed first.
func (c *ControlSocket) Serve(ctx context.Context) error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", c.path, err)
	}

	listener, err := net.Listen("unix", c.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", c.path, err)
	}
	defer func() {
		listener.Close()
		os.Remove(c.path)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	c.logger.Info("control socket listening", "path", c.path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			c.logger.Error("control socket accept failed", "error", err)
			continue
		}

		c.active.Add(1)
		go func() {
			defer c.active.Done()
			c.handleConnection(ctx, conn)
		}()
	}

	c.active.Wait()
	return nil
}

func (c *ControlSocket) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(socketReadTimeout))

	// CBOR is self-delimiting, so a single Decode reads exactly one
	// request without any framing.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxSocketRequest)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		c.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		c.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	result, err := c.dispatch(ctx, header.Action, raw)
	if err != nil {
		c.logger.Debug("control action failed", "action", header.Action, "error", err)
		c.writeError(conn, err.Error())
		return
	}
	c.writeSuccess(conn, result)
}

// dispatch routes one request to its action. Each action reuses the
// service methods behind the equivalent HTTP endpoint.
func (c *ControlSocket) dispatch(ctx context.Context, action string, raw codec.RawMessage) (any, error) {
	switch action {
	case "status":
		return c.service.Status(), nil

	case "pending":
		return struct {
			Pending []schema.PendingAction `cbor:"pending"`
		}{c.service.PendingActions()}, nil

	case "decide":
		var req struct {
			ActionID  int64  `cbor:"action_id"`
			Decision  string `cbor:"decision"`
			Rationale string `cbor:"rationale"`
		}
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding decide request: %w", err)
		}
		status, err := c.service.ApplyDecision(ctx, req.ActionID, schema.Decision(req.Decision), req.Rationale)
		if err != nil {
			return nil, err
		}
		return struct {
			Status schema.Status `cbor:"status"`
		}{status}, nil

	case "set-policy":
		var req struct {
			Participant string `cbor:"participant"`
			Value       bool   `cbor:"value"`
		}
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding set-policy request: %w", err)
		}
		if err := c.service.SetPolicy(schema.Participant(req.Participant), req.Value); err != nil {
			return nil, err
		}
		return nil, nil

	case "":
		return nil, errors.New("missing required field: action")

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func (c *ControlSocket) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if err := codec.NewEncoder(conn).Encode(socketResponse{Error: message}); err != nil {
		c.logger.Debug("control socket write failed", "error", err)
	}
}

func (c *ControlSocket) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))

	response := socketResponse{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			c.writeError(conn, fmt.Sprintf("internal: encoding response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		c.logger.Debug("control socket write failed", "error", err)
	}
}
