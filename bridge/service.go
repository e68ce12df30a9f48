// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/clock"
	"github.com/bridge-foundation/bridge/lib/idempotency"
	"github.com/bridge-foundation/bridge/lib/monitor"
	"github.com/bridge-foundation/bridge/lib/ratelimit"
)

// ErrInvalidRequest marks caller errors: missing content, unknown
// roles or intents, role mismatches, malformed decisions. Handlers
// map it to a 400 response.
var ErrInvalidRequest = errors.New("invalid request")

// ErrWatchdogExceeded is returned once the turn or repeat limit
// trips. The triggering message's side effects stand; the session is
// inactive for subsequent calls.
var ErrWatchdogExceeded = errors.New("watchdog limit exceeded")

// Service is one participant's end of the bridge: the full accept
// pipeline plus the reporting surface shared by the HTTP API and the
// control socket.
type Service struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	identity  schema.Participant
	limiter   *ratelimit.Limiter
	monitor   *monitor.Monitor
	tracker   *idempotency.Tracker
	store     *Store
	gate      *Gate
	deliverer *Deliverer
	workspace *Workspace

	sessionMu sync.Mutex
	roles     map[schema.Participant]schema.Role
}

// NewService wires a service from its configuration. Persisted
// sequencer and session state is restored before the service is
// returned.
func NewService(config Config, logger *slog.Logger, clk clock.Clock) (*Service, error) {
	policy := schema.DefaultPolicy()
	if config.PolicyFile != "" {
		loaded, err := schema.LoadPolicy(config.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("loading content policy: %w", err)
		}
		policy = loaded
	}

	store, err := NewStore(config.DataDir, policy, clk, logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:    config,
		logger:    logger,
		clock:     clk,
		identity:  config.Identity,
		limiter:   ratelimit.New(ratelimit.DefaultConfig(), clk),
		monitor:   monitor.New(clk),
		tracker:   idempotency.New(idempotency.DefaultCapacity),
		store:     store,
		gate:      NewGate(store, logger),
		deliverer: NewDeliverer(config.DataDir, config.PeerURL, logger),
		workspace: NewWorkspace(config.WorkspaceDir, *config.SanitizePaths, clk, logger),
		roles: map[schema.Participant]schema.Role{
			schema.Controller: schema.RoleController,
			schema.Executor:   schema.RoleExecutor,
		},
	}
	s.restoreSession()
	return s, nil
}

// Identity returns the configured participant.
func (s *Service) Identity() schema.Participant {
	return s.identity
}

// SendRequest carries one outbound message through the accept
// pipeline. Zero-value fields take defaults: sender defaults to the
// service identity (or the peer when both endpoints are empty, the
// file-watcher case), recipient to the sender's peer, role to the
// sender's session role, intent to "message".
type SendRequest struct {
	Sender     schema.Participant
	Recipient  schema.Participant
	Role       schema.Role
	Intent     schema.Intent
	Content    string
	LastSeen   string
	ExternalID string
}

// SendResult reports what the pipeline did with the message.
type SendResult struct {
	MessageID int64
	Timestamp string
	Approved  bool
	ActionID  int64
	Duplicate bool
	// Decision is set when the content was a bare quick-decision
	// token consumed by the approval gate instead of being stored.
	Decision schema.Decision
}

// Send runs the full accept pipeline: rate limit, validation,
// idempotency, quick-decision interception, sequencing, audit,
// watchdog, gating, delivery, forwarding.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	s.limiter.Acquire()

	if req.Content == "" {
		return SendResult{}, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}

	if req.Sender == "" && req.Recipient == "" {
		// Messages picked up from the inbound file carry no endpoint
		// fields: they come from the peer, addressed to us.
		req.Sender = s.identity.Peer()
		req.Recipient = s.identity
	}
	if req.Sender == "" {
		req.Sender = s.identity
	}
	if req.Recipient == "" {
		req.Recipient = req.Sender.Peer()
	}
	if !req.Sender.Valid() || !req.Recipient.Valid() {
		return SendResult{}, fmt.Errorf("%w: unknown participant", ErrInvalidRequest)
	}

	expectedRole := s.roleFor(req.Sender)
	if req.Role == "" {
		req.Role = expectedRole
	}
	if !req.Role.Valid() {
		return SendResult{}, fmt.Errorf("%w: invalid role %q", ErrInvalidRequest, req.Role)
	}
	if req.Role != expectedRole {
		return SendResult{}, fmt.Errorf("%w: role mismatch for %s", ErrInvalidRequest, req.Sender)
	}
	if req.Intent == "" {
		req.Intent = schema.IntentMessage
	}
	if !req.Intent.Valid() {
		return SendResult{}, fmt.Errorf("%w: invalid intent %q", ErrInvalidRequest, req.Intent)
	}

	// Re-delivered external ids are a success no-op.
	if req.ExternalID != "" {
		if s.tracker.Seen(string(req.Sender), req.ExternalID) {
			s.store.AppendLog("debug", fmt.Sprintf("duplicate message id %s from %s ignored", req.ExternalID, req.Sender))
			return SendResult{Duplicate: true}, nil
		}
		s.tracker.Record(string(req.Sender), req.ExternalID)
	}

	// A bare decision token routes to the latest pending action and
	// bypasses numbering and validation entirely.
	if decision, ok := schema.QuickDecision(strings.TrimSpace(req.Content)); ok {
		if applied, found := s.gate.ApplyLatest(decision, "numeric quick decision"); found {
			if applied.Status == schema.StatusApproved {
				s.deliverApproved(ctx, applied.Message)
			}
			return SendResult{
				ActionID: applied.ID,
				Approved: applied.Status == schema.StatusApproved,
				Decision: decision,
			}, nil
		}
		// Nothing pending: fall through and treat the token as
		// ordinary content (which the length rule then rejects).
	}

	msg := schema.Message{
		Timestamp: s.now(),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Role:      req.Role,
		Intent:    req.Intent,
		LastSeen:  req.LastSeen,
		Content:   req.Content,
	}
	if msg.LastSeen == "" {
		msg.LastSeen = "none"
	}

	if err := s.store.Accept(&msg); err != nil {
		return SendResult{}, err
	}

	s.monitor.Observe(msg.Content)
	if err := s.monitor.CheckLimits(); err != nil {
		s.store.AppendLog("warn", "watchdog limit exceeded, session halted")
		return SendResult{MessageID: msg.ID, Timestamp: msg.Timestamp},
			fmt.Errorf("%w: %v", ErrWatchdogExceeded, err)
	}

	approved, action := s.gate.Decide(msg, msg.Timestamp)

	if err := s.deliverer.WriteFile(msg, approved); err != nil {
		// The in-memory accept already happened; a file write failure
		// degrades delivery, it does not fail the request.
		s.logger.Warn("message file write failed", "error", err, "message_id", msg.ID)
	}
	if approved {
		s.forwardIfPeerBound(ctx, msg)
	}

	s.store.AppendLog("info", fmt.Sprintf("message %s->%s intent=%s approved=%t", msg.Sender, msg.Recipient, msg.Intent, approved))

	result := SendResult{
		MessageID: msg.ID,
		Timestamp: msg.Timestamp,
		Approved:  approved,
	}
	if action != nil {
		result.ActionID = action.ID
	}
	return result, nil
}

// deliverApproved writes and forwards a message that just cleared the
// approval gate.
func (s *Service) deliverApproved(ctx context.Context, msg schema.Message) {
	if err := s.deliverer.WriteFile(msg, true); err != nil {
		s.logger.Warn("message file write failed", "error", err, "message_id", msg.ID)
	}
	s.forwardIfPeerBound(ctx, msg)
}

// forwardIfPeerBound forwards executor-bound traffic to the peer
// process. The executor's own service never forwards to itself.
func (s *Service) forwardIfPeerBound(ctx context.Context, msg schema.Message) {
	if msg.Recipient != schema.Executor || s.identity == schema.Executor {
		return
	}
	s.deliverer.Forward(ctx, msg)
}

// ApplyDecision records an explicit decision on a pending action and
// delivers the held message on approval. Shared by the HTTP decision
// endpoint and the control socket.
func (s *Service) ApplyDecision(ctx context.Context, actionID int64, decision schema.Decision, rationale string) (schema.Status, error) {
	if actionID <= 0 || !decision.Valid() {
		return "", fmt.Errorf("%w: invalid action id or decision", ErrInvalidRequest)
	}

	applied, err := s.gate.Apply(actionID, decision, rationale)
	if err != nil {
		return "", err
	}
	if applied.Status == schema.StatusApproved {
		s.deliverApproved(ctx, applied.Message)
	}
	return applied.Status, nil
}

// SetPolicy updates a participant's auto-approve flag.
func (s *Service) SetPolicy(participant schema.Participant, value bool) error {
	if !participant.Valid() {
		return fmt.Errorf("%w: unknown participant %q", ErrInvalidRequest, participant)
	}
	s.store.SetAutoApprove(participant, value)
	return nil
}

// PendingActions returns the gate's action list.
func (s *Service) PendingActions() []schema.PendingAction {
	return s.gate.Pending()
}

// Messages returns the message history.
func (s *Service) Messages() []schema.Message {
	return s.store.Messages()
}

// ReceiveRequest is an inbound message forwarded by the peer.
type ReceiveRequest struct {
	ID        int64
	Timestamp string
	Role      schema.Role
	Intent    schema.Intent
	Content   string
}

// Receive stores a peer-forwarded message and, on the executor, kicks
// off the canned implementation reply for plan messages. Duplicate
// forwards (the watcher and the HTTP path can both deliver the same
// message) are dropped by id.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) error {
	if !req.Role.Valid() || !req.Intent.Valid() {
		return fmt.Errorf("%w: invalid role or intent", ErrInvalidRequest)
	}

	peer := s.identity.Peer()
	if req.ID != 0 {
		externalID := strconv.FormatInt(req.ID, 10)
		if s.tracker.Seen(string(peer), externalID) {
			return nil
		}
		s.tracker.Record(string(peer), externalID)
	}

	msg := schema.Message{
		ID:        req.ID,
		Timestamp: req.Timestamp,
		Sender:    peer,
		Recipient: s.identity,
		Role:      req.Role,
		Intent:    req.Intent,
		Content:   req.Content,
	}
	if msg.Timestamp == "" {
		msg.Timestamp = s.now()
	}
	s.store.RecordInbound(msg)
	s.store.AppendLog("info", fmt.Sprintf("inbound message from %s intent=%s", peer, req.Intent))

	s.monitor.Observe(req.Content)
	if err := s.monitor.CheckLimits(); err != nil {
		return fmt.Errorf("%w: %v", ErrWatchdogExceeded, err)
	}

	if s.identity == schema.Executor && req.Intent == schema.IntentPlan {
		s.replyToPlan(ctx, req.Content)
	}
	return nil
}

// replyToPlan sends the executor's canned implementation response
// back through the full pipeline.
func (s *Service) replyToPlan(ctx context.Context, plan string) {
	result, err := s.Send(ctx, SendRequest{
		Sender:    s.identity,
		Recipient: s.identity.Peer(),
		Role:      s.roleFor(s.identity),
		Intent:    schema.IntentCode,
		Content:   planReply(plan),
	})
	if err != nil {
		s.logger.Warn("plan auto-reply failed", "error", err)
		return
	}
	s.logger.Info("plan auto-reply sent", "message_id", result.MessageID)
}

// planReply builds the implementation response for a received plan.
// The excerpt is capped so oversized plans do not echo back whole.
func planReply(plan string) string {
	excerpt := plan
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	return fmt.Sprintf(`Received plan. Beginning implementation:

**Plan understood:**
%s

**Implementation approach:**
1. Analyzing requirements
2. Creating file structure
3. Implementing core functionality
4. Verifying basic operations

**Next steps:**
- Will create necessary files in the workspace
- Implement according to the plan
- Report back with results

Starting implementation now.

[RATIONALE]:
- Prioritize core contracts; de-risk large file handling first.
- Iterate with small bundles for quick review and approvals.

[DECISION]: yes (proceed with initial implementation)
`, excerpt)
}

// roleFor returns the session role assigned to a participant.
func (s *Service) roleFor(p schema.Participant) schema.Role {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.roles[p]
}

// now returns the current UTC time in the message timestamp format.
func (s *Service) now() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

// Status is the reporting payload for the status endpoint and the
// control socket's status action.
type Status struct {
	Instance      schema.Participant `json:"instance"`
	ListenAddr    string             `json:"listen_addr"`
	SessionActive bool               `json:"session_active"`
	MessageCount  int                `json:"message_count"`
	PendingCount  int                `json:"pending_count"`
	LastMessageID int64              `json:"last_message_id"`
	Workspace     string             `json:"workspace"`
}

// Status reports the service's current shape.
func (s *Service) Status() Status {
	pending := 0
	for _, a := range s.gate.Pending() {
		if a.Status == schema.StatusPending {
			pending++
		}
	}
	return Status{
		Instance:      s.identity,
		ListenAddr:    s.config.ListenAddr,
		SessionActive: s.monitor.SessionActive(),
		MessageCount:  s.store.MessageCount(),
		PendingCount:  pending,
		LastMessageID: s.store.LastMessageID(),
		Workspace:     s.workspace.Root(),
	}
}

// Health is the liveness payload: healthy means an active session
// that has accepted at least one valid message.
type Health struct {
	SessionActive bool `json:"session_active"`
	ValidMessages int  `json:"valid_messages"`
	Healthy       bool `json:"healthy"`
}

// Health reports session liveness.
func (s *Service) Health() Health {
	active := s.monitor.SessionActive()
	valid := s.store.ValidCount()
	return Health{
		SessionActive: active,
		ValidMessages: valid,
		Healthy:       active && valid > 0,
	}
}

// Metrics is the monitoring payload.
type Metrics struct {
	MessageCount      int     `json:"message_count"`
	MessagesPerMinute float64 `json:"messages_per_minute"`
	RepeatCount       int     `json:"repeat_count"`
	Backoff           float64 `json:"backoff"`
}

// Metrics reports throughput and backoff for the monitoring panel.
func (s *Service) Metrics() Metrics {
	snap := s.monitor.Snapshot()
	return Metrics{
		MessageCount:      snap.MessageCount,
		MessagesPerMinute: snap.MessagesPerMinute,
		RepeatCount:       snap.RepeatCount,
		Backoff:           s.limiter.Backoff(),
	}
}

// TailLog returns the last n project log lines.
func (s *Service) TailLog(n int) ([]string, error) {
	return s.store.TailLog(n)
}

// TailConversation returns the last n parsed audit entries.
func (s *Service) TailConversation(n int) ([]ConversationEntry, error) {
	return s.store.TailConversation(n)
}

// CreateFile writes one sanitized file under the workspace root.
func (s *Service) CreateFile(path, content string) (CreateResult, error) {
	return s.workspace.CreateFile(path, content)
}

// ApplyBundle writes a batch of files under the workspace root.
func (s *Service) ApplyBundle(entries []BundleEntry, baseDir string) BundleResult {
	result := s.workspace.ApplyBundle(entries, baseDir)
	s.store.AppendLog("info", fmt.Sprintf("apply_file_bundle created=%d errors=%d base_dir=%s", len(result.Created), len(result.Errors), baseDir))
	return result
}
