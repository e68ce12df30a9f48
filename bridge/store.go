// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/clock"
	"github.com/bridge-foundation/bridge/lib/statefile"
)

// maxInlineContent is the largest content kept inline in a message.
// Anything larger spills to an attachment file and the content is
// replaced by a reference, bounding history and audit line sizes.
const maxInlineContent = 8000

// maxSnippet bounds the content excerpt written to the audit log.
const maxSnippet = 400

// storeState is the durable part of the store, replaced atomically on
// every sequencer or policy mutation.
type storeState struct {
	NextMessageID int64                       `json:"next_message_id"`
	YesAllPolicy  map[schema.Participant]bool `json:"yes_all_policy"`
	LastSave      string                      `json:"last_save"`
}

// Store owns the message history, the id sequencer, the per-sender
// auto-approve policy, and the audit appenders. All mutation happens
// under one mutex: an id is assigned exactly once, never to content
// that fails validation, and the incremented counter hits disk before
// the id becomes visible to callers.
type Store struct {
	dataDir string
	policy  *schema.Policy
	clock   clock.Clock
	logger  *slog.Logger

	mu            sync.Mutex
	messages      []schema.Message
	nextMessageID int64
	autoApprove   map[schema.Participant]bool
	validCount    int
}

// NewStore creates a store rooted at dataDir and loads any persisted
// sequencer state. A missing state file starts the sequencer at 1
// with auto-approve enabled for both participants.
func NewStore(dataDir string, policy *schema.Policy, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	s := &Store{
		dataDir:       dataDir,
		policy:        policy,
		clock:         clk,
		logger:        logger,
		nextMessageID: 1,
		autoApprove: map[schema.Participant]bool{
			schema.Controller: true,
			schema.Executor:   true,
		},
	}

	var state storeState
	err := statefile.Load(s.statePath(), &state)
	switch {
	case err == nil:
		if state.NextMessageID > 0 {
			s.nextMessageID = state.NextMessageID
		}
		if state.YesAllPolicy != nil {
			s.autoApprove = state.YesAllPolicy
		}
		logger.Info("sequencer state loaded", "next_message_id", s.nextMessageID)
	case os.IsNotExist(err):
		// First run.
	default:
		// Best-effort durability: a damaged state file is logged and
		// replaced on the next save rather than refusing to start.
		logger.Warn("state load failed", "error", err)
	}

	return s, nil
}

func (s *Store) statePath() string {
	return filepath.Join(s.dataDir, "state.json")
}

// Accept validates the message content, assigns the next id, spills
// oversized content to an attachment, and appends the audit records.
// On validation failure the sequencer counter is untouched and the
// error matches schema.ErrInvalidContent.
func (s *Store) Accept(msg *schema.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.Validate(msg.Content); err != nil {
		s.appendLogLocked("warn", fmt.Sprintf("invalid message content from %s", msg.Sender))
		return err
	}

	msg.ID = s.nextMessageID
	s.nextMessageID++
	s.saveLocked()

	if len(msg.Content) > maxInlineContent {
		s.spillAttachmentLocked(msg)
	}

	s.appendConversationLocked(*msg)
	s.appendLogLocked("conv", fmt.Sprintf("%s->%s %s (%d chars)", msg.Sender, msg.Recipient, msg.Intent, len(msg.Content)))

	s.messages = append(s.messages, *msg)
	s.validCount++
	return nil
}

// RecordInbound appends a peer-delivered message to the history
// without touching the sequencer; the sender's service already
// numbered it.
func (s *Store) RecordInbound(msg schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.validCount++
}

// spillAttachmentLocked writes the content to an attachment file and
// replaces it with a reference string. A write failure leaves the
// content inline; oversized audit lines beat losing the message.
func (s *Store) spillAttachmentLocked(msg *schema.Message) {
	attachDir := filepath.Join(s.dataDir, "attachments")
	if err := os.MkdirAll(attachDir, 0o755); err != nil {
		s.logger.Warn("attachment dir create failed", "error", err)
		return
	}
	name := fmt.Sprintf("msg-%d-%d.txt", msg.ID, s.clock.Now().Unix())
	if err := os.WriteFile(filepath.Join(attachDir, name), []byte(msg.Content), 0o644); err != nil {
		s.logger.Warn("attachment write failed", "error", err, "message_id", msg.ID)
		return
	}
	ref := filepath.ToSlash(filepath.Join(filepath.Base(s.dataDir), "attachments", name))
	msg.Content = fmt.Sprintf("[ATTACHMENT] %s (len=%d)", ref, len(msg.Content))
}

// saveLocked persists the sequencer counter and approval policy.
// Persistence failure is logged; in-memory state still advances.
func (s *Store) saveLocked() {
	state := storeState{
		NextMessageID: s.nextMessageID,
		YesAllPolicy:  s.autoApprove,
		LastSave:      s.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := statefile.Save(s.statePath(), state); err != nil {
		s.logger.Warn("state save failed", "error", err)
	}
}

// Messages returns a snapshot of the history.
func (s *Store) Messages() []schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.Message(nil), s.messages...)
}

// MessageCount returns the number of messages in the history.
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// LastMessageID returns the id of the newest numbered message, or 0.
func (s *Store) LastMessageID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextMessageID - 1
}

// ValidCount reports how many messages passed validation since the
// session started.
func (s *Store) ValidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validCount
}

// ResetValidCount zeroes the valid-message counter on session start.
func (s *Store) ResetValidCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validCount = 0
}

// AutoApprove reports whether the participant's sends bypass the
// approval gate.
func (s *Store) AutoApprove(p schema.Participant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoApprove[p]
}

// SetAutoApprove updates and persists the participant's auto-approve
// flag.
func (s *Store) SetAutoApprove(p schema.Participant, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoApprove[p] = value
	s.saveLocked()
}

// AppendLog writes an operational log line to project.log. Never
// fails: audit logging must not break the message flow.
func (s *Store) AppendLog(level, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(level, text)
}

func (s *Store) appendLogLocked(level, text string) {
	ts := s.clock.Now().UTC().Format(time.RFC3339Nano)
	line := fmt.Sprintf("%s [%s] %s\n", ts, strings.ToUpper(level), text)
	s.appendFileLocked("project.log", line)
}

// appendConversationLocked writes the audit entry for an accepted
// message to conversation.md.
func (s *Store) appendConversationLocked(msg schema.Message) {
	snippet := msg.Content
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet-3] + "..."
	}
	line := fmt.Sprintf("%s [CONV#%d] %s(%s)->%s [%s]\n%s\n\n",
		msg.Timestamp, msg.ID, msg.Sender, msg.Role, msg.Recipient, msg.Intent, snippet)
	s.appendFileLocked("conversation.md", line)
}

func (s *Store) appendFileLocked(name, line string) {
	path := filepath.Join(s.dataDir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("audit append failed", "file", name, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		s.logger.Warn("audit append failed", "file", name, "error", err)
	}
}

// TailLog returns the last n lines of project.log. A missing file is
// an empty tail.
func (s *Store) TailLog(n int) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "project.log"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// ConversationEntry is one parsed audit record from conversation.md.
type ConversationEntry struct {
	Timestamp string `json:"timestamp"`
	MessageID int64  `json:"message_id"`
	Sender    string `json:"sender"`
	Role      string `json:"role"`
	Recipient string `json:"recipient"`
	Intent    string `json:"intent"`
	Snippet   string `json:"snippet"`
}

// conversationHeader matches the first line of an audit entry.
var conversationHeader = regexp.MustCompile(`^(\S+Z) \[CONV#(\d+)\] (.+?)\((.+?)\)->(.+?) \[(.+?)\]$`)

// TailConversation parses conversation.md back into structured
// entries and returns the last n.
func (s *Store) TailConversation(n int) ([]ConversationEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "conversation.md"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading conversation log: %w", err)
	}

	var entries []ConversationEntry
	var current *ConversationEntry
	var snippet []string

	flush := func() {
		if current == nil {
			return
		}
		current.Snippet = strings.TrimSpace(strings.Join(snippet, "\n"))
		entries = append(entries, *current)
		current = nil
		snippet = nil
	}

	for _, line := range strings.Split(string(data), "\n") {
		if m := conversationHeader.FindStringSubmatch(line); m != nil {
			flush()
			id, _ := strconv.ParseInt(m[2], 10, 64)
			current = &ConversationEntry{
				Timestamp: m[1],
				MessageID: id,
				Sender:    strings.TrimSpace(m[3]),
				Role:      strings.TrimSpace(m[4]),
				Recipient: strings.TrimSpace(m[5]),
				Intent:    strings.TrimSpace(m[6]),
			}
			continue
		}
		if current != nil {
			snippet = append(snippet, line)
		}
	}
	flush()

	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
