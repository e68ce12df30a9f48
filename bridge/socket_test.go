// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/clock"
	"github.com/bridge-foundation/bridge/lib/codec"
)

// startControlSocket serves the control socket in the background and
// returns once the socket file exists.
func startControlSocket(t *testing.T, service *Service) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewControlSocket(service).Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(service.config.SocketPath); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("control socket never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func socketRoundTrip(t *testing.T, path string, request any) socketResponse {
	t.Helper()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dialing socket: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	var response socketResponse
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

func TestControlSocketStatus(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)
	service := newTestService(t, config, clk)
	startControlSocket(t, service)

	response := socketRoundTrip(t, config.SocketPath, map[string]string{"action": "status"})
	if !response.OK {
		t.Fatalf("status action failed: %s", response.Error)
	}

	var status Status
	if err := codec.Unmarshal(response.Data, &status); err != nil {
		t.Fatalf("decoding status payload: %v", err)
	}
	if status.Instance != schema.Controller {
		t.Errorf("instance = %q, want controller", status.Instance)
	}
}

func TestControlSocketDecide(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)
	service := newTestService(t, config, clk)
	startControlSocket(t, service)

	if err := service.SetPolicy(schema.Controller, false); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	held := send(t, service, clk, SendRequest{
		Sender:  schema.Controller,
		Content: "queue this for the operator",
	})

	response := socketRoundTrip(t, config.SocketPath, map[string]any{
		"action":    "decide",
		"action_id": held.ActionID,
		"decision":  "yes",
	})
	if !response.OK {
		t.Fatalf("decide action failed: %s", response.Error)
	}

	var result struct {
		Status schema.Status `cbor:"status"`
	}
	if err := codec.Unmarshal(response.Data, &result); err != nil {
		t.Fatalf("decoding decide payload: %v", err)
	}
	if result.Status != schema.StatusApproved {
		t.Errorf("status = %q, want approved", result.Status)
	}
}

func TestControlSocketUnknownAction(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)
	service := newTestService(t, config, clk)
	startControlSocket(t, service)

	response := socketRoundTrip(t, config.SocketPath, map[string]string{"action": "reboot"})
	if response.OK {
		t.Fatal("unknown action reported OK")
	}
	if !strings.Contains(response.Error, "unknown action") {
		t.Errorf("error = %q", response.Error)
	}

	missing := socketRoundTrip(t, config.SocketPath, map[string]string{"other": "field"})
	if missing.OK || !strings.Contains(missing.Error, "action") {
		t.Errorf("missing-action response = %+v", missing)
	}
}
