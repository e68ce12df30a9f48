// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Participant names one of the two fixed endpoints of the bridge.
type Participant string

const (
	// Controller plans and directs the work.
	Controller Participant = "controller"
	// Executor implements what the controller directs. Sends to the
	// executor pass through the approval gate.
	Executor Participant = "executor"
)

// Valid reports whether p is one of the two fixed participants.
func (p Participant) Valid() bool {
	return p == Controller || p == Executor
}

// Peer returns the other participant.
func (p Participant) Peer() Participant {
	if p == Controller {
		return Executor
	}
	return Controller
}

// Role classifies the sender's function within the workflow. Roles
// mirror the participant names but travel separately on each message
// so a session can reassign them.
type Role string

const (
	RoleController Role = "controller"
	RoleExecutor   Role = "executor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleController || r == RoleExecutor
}

// Intent tags a message's purpose within the workflow.
type Intent string

const (
	IntentPlan    Intent = "plan"
	IntentDesign  Intent = "design"
	IntentCode    Intent = "code"
	IntentReview  Intent = "review"
	IntentTest    Intent = "test"
	IntentDone    Intent = "done"
	IntentManual  Intent = "manual"
	IntentMessage Intent = "message"
)

var intents = map[Intent]struct{}{
	IntentPlan: {}, IntentDesign: {}, IntentCode: {}, IntentReview: {},
	IntentTest: {}, IntentDone: {}, IntentManual: {}, IntentMessage: {},
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	_, known := intents[i]
	return known
}

// Decision is the outcome applied to a pending action.
type Decision string

const (
	// DecisionYes approves the single held message.
	DecisionYes Decision = "yes"
	// DecisionYesAll approves the held message and flips the sender's
	// auto-approve policy for all future sends.
	DecisionYesAll Decision = "yes_all"
	// DecisionNo rejects the held message.
	DecisionNo Decision = "no"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionYes || d == DecisionYesAll || d == DecisionNo
}

// QuickDecision maps the bare numeric tokens "1", "2", "3" (content
// already trimmed by the caller) to yes, yes_all, no. The second
// return is false for anything else.
func QuickDecision(token string) (Decision, bool) {
	switch token {
	case "1":
		return DecisionYes, true
	case "2":
		return DecisionYesAll, true
	case "3":
		return DecisionNo, true
	}
	return "", false
}

// Message is the unit of exchange between the two participants.
//
// ID is assigned by the sequencer at acceptance time and is zero until
// then. Timestamp and LastSeen are RFC 3339 UTC strings; LastSeen is
// advisory ("none" when the sender has seen nothing) and points at the
// most recent message received from the counterpart.
type Message struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp string      `json:"timestamp"`
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Role      Role        `json:"role"`
	Intent    Intent      `json:"intent"`
	LastSeen  string      `json:"last_seen,omitempty"`
	Content   string      `json:"content"`
}

// PendingAction is an outbound message held for approval. Actions are
// kept in memory only; a restart drops the queue.
type PendingAction struct {
	ID        int64    `json:"id"`
	Message   Message  `json:"message"`
	Status    Status   `json:"status"`
	CreatedAt string   `json:"created_at"`
	Decision  Decision `json:"decision,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
}

// Status is the lifecycle state of a pending action. The only legal
// transitions are pending to approved and pending to rejected; both
// are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)
