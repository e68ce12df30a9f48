// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/clock"
)

var testStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, identity schema.Participant) Config {
	t.Helper()
	dir := t.TempDir()
	enabled := true
	return Config{
		Identity:      identity,
		ListenAddr:    "localhost:0",
		PeerURL:       "http://localhost:1",
		DataDir:       filepath.Join(dir, "messages"),
		WorkspaceDir:  filepath.Join(dir, "workspace"),
		SocketPath:    filepath.Join(dir, "bridge.sock"),
		SanitizePaths: &enabled,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, config Config, clk clock.Clock) *Service {
	t.Helper()
	service, err := NewService(config, testLogger(), clk)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

// send advances the fake clock past any accumulated backoff so
// Acquire never blocks the test goroutine.
func send(t *testing.T, service *Service, clk *clock.FakeClock, req SendRequest) SendResult {
	t.Helper()
	clk.Advance(20 * time.Second)
	result, err := service.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	return result
}

func TestSendApprovedMessage(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)
	service := newTestService(t, config, clk)

	result := send(t, service, clk, SendRequest{
		Sender:    schema.Controller,
		Recipient: schema.Executor,
		Intent:    schema.IntentPlan,
		Content:   "draft the schema layout first",
	})

	if !result.Approved {
		t.Error("Approved = false, want true (default policy auto-approves)")
	}
	if result.MessageID != 1 {
		t.Errorf("MessageID = %d, want 1", result.MessageID)
	}

	data, err := os.ReadFile(filepath.Join(config.DataDir, "to_executor.txt"))
	if err != nil {
		t.Fatalf("reading message file: %v", err)
	}
	msg, err := schema.Parse(string(data))
	if err != nil {
		t.Fatalf("parsing message file: %v", err)
	}
	if msg.ID != 1 || msg.Intent != schema.IntentPlan {
		t.Errorf("message file = id %d intent %q, want id 1 intent plan", msg.ID, msg.Intent)
	}
}

func TestSendInvalidContentLeavesSequencerUnchanged(t *testing.T) {
	clk := clock.Fake(testStart)
	service := newTestService(t, testConfig(t, schema.Controller), clk)

	clk.Advance(20 * time.Second)
	_, err := service.Send(context.Background(), SendRequest{
		Sender:  schema.Controller,
		Content: "hi",
	})
	if !errors.Is(err, schema.ErrInvalidContent) {
		t.Fatalf("Send(short) = %v, want ErrInvalidContent", err)
	}

	result := send(t, service, clk, SendRequest{
		Sender:  schema.Controller,
		Content: "a real directive this time",
	})
	if result.MessageID != 1 {
		t.Errorf("MessageID after rejected send = %d, want 1", result.MessageID)
	}
}

func TestSendDuplicateExternalID(t *testing.T) {
	clk := clock.Fake(testStart)
	service := newTestService(t, testConfig(t, schema.Controller), clk)

	first := send(t, service, clk, SendRequest{
		Sender:     schema.Controller,
		Content:    "apply the schema change",
		ExternalID: "7",
	})
	if first.Duplicate {
		t.Fatal("first send flagged duplicate")
	}

	second := send(t, service, clk, SendRequest{
		Sender:     schema.Controller,
		Content:    "apply the schema change",
		ExternalID: "7",
	})
	if !second.Duplicate {
		t.Error("second send with same external id not flagged duplicate")
	}
	if got := service.store.MessageCount(); got != 1 {
		t.Errorf("stored messages = %d, want 1", got)
	}
}

func TestApprovalGateQuickDecisionFlow(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)
	service := newTestService(t, config, clk)

	if err := service.SetPolicy(schema.Controller, false); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}

	held := send(t, service, clk, SendRequest{
		Sender:    schema.Controller,
		Recipient: schema.Executor,
		Intent:    schema.IntentPlan,
		Content:   "refactor the storage layer",
	})
	if held.Approved {
		t.Fatal("Approved = true with policy false, want pending")
	}
	if held.ActionID == 0 {
		t.Fatal("ActionID = 0, want a pending action")
	}
	if _, err := os.Stat(filepath.Join(config.DataDir, "pending_to_executor.txt")); err != nil {
		t.Errorf("pending message file missing: %v", err)
	}

	// Quick decision "2" is yes_all: approves the held message and
	// flips the sender's policy.
	decided := send(t, service, clk, SendRequest{
		Sender:  schema.Controller,
		Content: "2",
	})
	if decided.Decision != schema.DecisionYesAll {
		t.Errorf("Decision = %q, want yes_all", decided.Decision)
	}
	if decided.ActionID != held.ActionID {
		t.Errorf("ActionID = %d, want %d", decided.ActionID, held.ActionID)
	}
	if !decided.Approved {
		t.Error("quick yes_all did not approve the action")
	}
	if _, err := os.Stat(filepath.Join(config.DataDir, "to_executor.txt")); err != nil {
		t.Errorf("approved message file missing: %v", err)
	}
	if !service.store.AutoApprove(schema.Controller) {
		t.Error("yes_all did not flip the sender's policy")
	}

	// The next send auto-approves without queuing.
	after := send(t, service, clk, SendRequest{
		Sender:    schema.Controller,
		Recipient: schema.Executor,
		Content:   "continue with the migration",
	})
	if !after.Approved || after.ActionID != 0 {
		t.Errorf("post-yes_all send = approved %t action %d, want approved with no action", after.Approved, after.ActionID)
	}
}

func TestQuickDecisionWithoutPendingIsOrdinaryContent(t *testing.T) {
	clk := clock.Fake(testStart)
	service := newTestService(t, testConfig(t, schema.Controller), clk)

	clk.Advance(20 * time.Second)
	_, err := service.Send(context.Background(), SendRequest{
		Sender:  schema.Controller,
		Content: "2",
	})
	if !errors.Is(err, schema.ErrInvalidContent) {
		t.Errorf("Send(token, nothing pending) = %v, want ErrInvalidContent", err)
	}
}

func TestWatchdogHaltsOnFifthIdenticalMessage(t *testing.T) {
	clk := clock.Fake(testStart)
	service := newTestService(t, testConfig(t, schema.Controller), clk)

	if _, err := service.StartSession("coordinate the build", "", nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	const repeated = "repeat the same directive again"
	for i := 1; i <= 4; i++ {
		send(t, service, clk, SendRequest{Sender: schema.Controller, Content: repeated})
	}

	clk.Advance(20 * time.Second)
	_, err := service.Send(context.Background(), SendRequest{Sender: schema.Controller, Content: repeated})
	if !errors.Is(err, ErrWatchdogExceeded) {
		t.Fatalf("fifth identical send = %v, want ErrWatchdogExceeded", err)
	}
	if service.Status().SessionActive {
		t.Error("session still active after watchdog trip")
	}
}

func TestSequencerIDsSurviveRestart(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)

	service := newTestService(t, config, clk)
	first := send(t, service, clk, SendRequest{Sender: schema.Controller, Content: "initial directive for the pair"})
	if first.MessageID != 1 {
		t.Fatalf("MessageID = %d, want 1", first.MessageID)
	}

	reloaded := newTestService(t, config, clk)
	second := send(t, reloaded, clk, SendRequest{Sender: schema.Controller, Content: "directive after the restart"})
	if second.MessageID != 2 {
		t.Errorf("MessageID after reload = %d, want 2", second.MessageID)
	}
}

func TestStartSessionResetsCounters(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)
	service := newTestService(t, config, clk)

	send(t, service, clk, SendRequest{Sender: schema.Controller, Content: "work before the session"})

	info, err := service.StartSession("ship the feature", "collaborative", map[schema.Participant]schema.Role{
		schema.Controller: schema.RoleController,
		schema.Executor:   schema.RoleExecutor,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if info.Timestamp == "" {
		t.Error("session id (timestamp) is empty")
	}
	if got := service.Metrics().MessageCount; got != 0 {
		t.Errorf("MessageCount after session start = %d, want 0", got)
	}
	if _, err := os.Stat(filepath.Join(config.DataDir, "session.json")); err != nil {
		t.Errorf("session file missing: %v", err)
	}
}

func TestSessionActiveSurvivesRestart(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Controller)

	service := newTestService(t, config, clk)
	if _, err := service.StartSession("long-running objective", "", nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	reloaded := newTestService(t, config, clk)
	if !reloaded.Status().SessionActive {
		t.Error("restored service reports inactive session")
	}
}

func TestReceivePlanTriggersImplementationReply(t *testing.T) {
	clk := clock.Fake(testStart)
	config := testConfig(t, schema.Executor)
	service := newTestService(t, config, clk)

	err := service.Receive(context.Background(), ReceiveRequest{
		ID:      3,
		Role:    schema.RoleController,
		Intent:  schema.IntentPlan,
		Content: "build the ingestion pipeline",
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	messages := service.Messages()
	if len(messages) != 2 {
		t.Fatalf("stored messages = %d, want 2 (plan + reply)", len(messages))
	}
	if messages[0].Intent != schema.IntentPlan || messages[0].Sender != schema.Controller {
		t.Errorf("inbound = %q from %q, want plan from controller", messages[0].Intent, messages[0].Sender)
	}
	reply := messages[1]
	if reply.Intent != schema.IntentCode || reply.Recipient != schema.Controller {
		t.Errorf("reply = %q to %q, want code to controller", reply.Intent, reply.Recipient)
	}
	if _, err := os.Stat(filepath.Join(config.DataDir, "to_controller.txt")); err != nil {
		t.Errorf("reply message file missing: %v", err)
	}

	// The same forwarded id is dropped on re-delivery.
	if err := service.Receive(context.Background(), ReceiveRequest{
		ID:      3,
		Role:    schema.RoleController,
		Intent:  schema.IntentPlan,
		Content: "build the ingestion pipeline",
	}); err != nil {
		t.Fatalf("Receive (duplicate): %v", err)
	}
	if got := len(service.Messages()); got != 2 {
		t.Errorf("messages after duplicate receive = %d, want 2", got)
	}
}

func TestControllerToExecutorScenario(t *testing.T) {
	clk := clock.Fake(testStart)

	executorConfig := testConfig(t, schema.Executor)
	executor := newTestService(t, executorConfig, clk)
	peer := httptest.NewServer(executor.Handler())
	defer peer.Close()

	controllerConfig := testConfig(t, schema.Controller)
	controllerConfig.PeerURL = peer.URL
	controller := newTestService(t, controllerConfig, clk)

	if _, err := controller.StartSession("X", "", nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	result := send(t, controller, clk, SendRequest{
		Sender:    schema.Controller,
		Recipient: schema.Executor,
		Role:      schema.RoleController,
		Intent:    schema.IntentPlan,
		Content:   "implement the storage layer end to end",
	})
	if !result.Approved {
		t.Fatal("plan send not approved with auto-approve policy")
	}

	if _, err := os.Stat(filepath.Join(controllerConfig.DataDir, "to_executor.txt")); err != nil {
		t.Errorf("to_executor file missing: %v", err)
	}

	var gotPlan bool
	for _, msg := range executor.Messages() {
		if msg.Intent == schema.IntentPlan {
			gotPlan = true
		}
	}
	if !gotPlan {
		t.Error("executor never received the forwarded plan")
	}
}
