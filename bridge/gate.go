// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/bridge-foundation/bridge/bridge/schema"
)

// ErrActionNotFound is returned when a decision addresses an unknown
// action id.
var ErrActionNotFound = errors.New("action not found")

// ErrAlreadyDecided is returned when a decision addresses an action
// that already left pending status. Actions transition exactly once.
var ErrAlreadyDecided = errors.New("action already decided")

// Gate decides whether an executor-bound message is forwarded
// immediately or held for approval. Held messages become pending
// actions with their own monotonic ids.
//
// The action queue is in-memory only: a restart drops undecided
// actions. The auto-approve policy itself is durable (it lives in the
// store alongside the sequencer counter).
type Gate struct {
	store  *Store
	logger *slog.Logger

	mu           sync.Mutex
	actions      []*schema.PendingAction
	nextActionID int64
}

// NewGate creates a gate that consults the store's auto-approve
// policy.
func NewGate(store *Store, logger *slog.Logger) *Gate {
	return &Gate{
		store:        store,
		logger:       logger,
		nextActionID: 1,
	}
}

// Decide routes an accepted message. Messages not addressed to the
// executor are always approved. Executor-bound messages are approved
// when the sender's auto-approve policy is set; otherwise the message
// is held as a new pending action and the action is returned.
func (g *Gate) Decide(msg schema.Message, createdAt string) (approved bool, action *schema.PendingAction) {
	if msg.Recipient != schema.Executor {
		return true, nil
	}
	if g.store.AutoApprove(msg.Sender) {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	action = &schema.PendingAction{
		ID:        g.nextActionID,
		Message:   msg,
		Status:    schema.StatusPending,
		CreatedAt: createdAt,
	}
	g.nextActionID++
	g.actions = append(g.actions, action)

	g.logger.Info("message held for approval",
		"action_id", action.ID,
		"message_id", msg.ID,
		"sender", msg.Sender,
	)
	return false, action
}

// Apply records a terminal decision on the identified action. The
// returned copy reflects the new status; its held message is what the
// caller delivers on approval. A yes_all decision also flips the
// sender's auto-approve policy.
func (g *Gate) Apply(actionID int64, decision schema.Decision, rationale string) (schema.PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var target *schema.PendingAction
	for _, a := range g.actions {
		if a.ID == actionID {
			target = a
			break
		}
	}
	if target == nil {
		return schema.PendingAction{}, ErrActionNotFound
	}
	return g.applyLocked(target, decision, rationale)
}

// ApplyLatest records a decision on the most recently created action
// still pending, scanned newest-first. The second return is false
// when nothing is pending.
func (g *Gate) ApplyLatest(decision schema.Decision, rationale string) (schema.PendingAction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := len(g.actions) - 1; i >= 0; i-- {
		if g.actions[i].Status == schema.StatusPending {
			applied, err := g.applyLocked(g.actions[i], decision, rationale)
			if err != nil {
				// Unreachable: the scan only selects pending actions.
				return schema.PendingAction{}, false
			}
			return applied, true
		}
	}
	return schema.PendingAction{}, false
}

func (g *Gate) applyLocked(action *schema.PendingAction, decision schema.Decision, rationale string) (schema.PendingAction, error) {
	if action.Status != schema.StatusPending {
		return schema.PendingAction{}, ErrAlreadyDecided
	}

	action.Decision = decision
	action.Rationale = rationale
	switch decision {
	case schema.DecisionNo:
		action.Status = schema.StatusRejected
	case schema.DecisionYesAll:
		action.Status = schema.StatusApproved
		g.store.SetAutoApprove(action.Message.Sender, true)
	default:
		action.Status = schema.StatusApproved
	}

	g.logger.Info("action decided",
		"action_id", action.ID,
		"decision", decision,
		"status", action.Status,
	)
	return *action, nil
}

// Pending returns a snapshot of every action, decided or not, oldest
// first. The listing endpoint shows the full decision trail.
func (g *Gate) Pending() []schema.PendingAction {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]schema.PendingAction, 0, len(g.actions))
	for _, a := range g.actions {
		out = append(out, *a)
	}
	return out
}
