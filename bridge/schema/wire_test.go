// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"
	"testing"
)

func TestFormatParseRoundTrip(t *testing.T) {
	original := Message{
		ID:        42,
		Timestamp: "2026-03-14T09:26:53Z",
		Sender:    Controller,
		Recipient: Executor,
		Role:      RoleController,
		Intent:    IntentPlan,
		LastSeen:  "2026-03-14T09:25:00Z",
		Content:   "Build the parser first.\nThen wire the endpoints.",
	}

	parsed, err := Parse(Format(original))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != original {
		t.Errorf("round trip = %+v, want %+v", parsed, original)
	}
}

func TestFormatUnassignedID(t *testing.T) {
	m := Message{
		Timestamp: "2026-03-14T09:26:53Z",
		Sender:    Controller,
		Recipient: Executor,
		Role:      RoleController,
		Intent:    IntentMessage,
		Content:   "hello there",
	}

	text := Format(m)
	if !strings.Contains(text, "[MESSAGE_ID]: ?") {
		t.Errorf("formatted message missing placeholder id:\n%s", text)
	}

	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.ID != 0 {
		t.Errorf("parsed.ID = %d, want 0", parsed.ID)
	}
	if parsed.LastSeen != "none" {
		t.Errorf("parsed.LastSeen = %q, want %q", parsed.LastSeen, "none")
	}
}

func TestParsePayloadMayContainMarkers(t *testing.T) {
	m := Message{
		ID:        7,
		Timestamp: "2026-03-14T09:26:53Z",
		Sender:    Executor,
		Recipient: Controller,
		Role:      RoleExecutor,
		Intent:    IntentCode,
		LastSeen:  "none",
		Content:   "[TIMESTAMP]: not a real header\nactual body",
	}

	parsed, err := Parse(Format(m))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Content != m.Content {
		t.Errorf("parsed.Content = %q, want %q", parsed.Content, m.Content)
	}
	if parsed.Timestamp != m.Timestamp {
		t.Errorf("parsed.Timestamp = %q, want %q", parsed.Timestamp, m.Timestamp)
	}
}

func TestParseMissingPayloadMarker(t *testing.T) {
	if _, err := Parse("[TIMESTAMP]: 2026-03-14T09:26:53Z\n"); err == nil {
		t.Error("Parse without payload marker succeeded, want error")
	}
}

func TestParseBadMessageID(t *testing.T) {
	text := "[TIMESTAMP]: 2026-03-14T09:26:53Z\n[MESSAGE_ID]: abc\n[PAYLOAD]:\nbody"
	if _, err := Parse(text); err == nil {
		t.Error("Parse with non-numeric id succeeded, want error")
	}
}
