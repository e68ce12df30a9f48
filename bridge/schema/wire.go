// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire-format field markers. The message file is a fixed sequence of
// "[KEY]: value" lines followed by a multi-line payload; the payload
// marker is always last so content may contain anything, including
// lines that look like markers.
const (
	markerTimestamp = "[TIMESTAMP]: "
	markerFrom      = "[FROM]: "
	markerTo        = "[TO]: "
	markerRole      = "[ROLE]: "
	markerIntent    = "[INTENT]: "
	markerLastSeen  = "[LAST_SEEN]: "
	markerMessageID = "[MESSAGE_ID]: "
	markerSummary   = "[SUMMARY]:"
	markerPayload   = "[PAYLOAD]:"
)

// Format renders a message in the canonical message-file layout. The
// summary block is informational boilerplate for human readers; Parse
// ignores it.
func Format(m Message) string {
	id := "?"
	if m.ID != 0 {
		id = strconv.FormatInt(m.ID, 10)
	}
	lastSeen := m.LastSeen
	if lastSeen == "" {
		lastSeen = "none"
	}

	var b strings.Builder
	b.WriteString(markerTimestamp + m.Timestamp + "\n")
	b.WriteString(markerFrom + string(m.Sender) + "\n")
	b.WriteString(markerTo + string(m.Recipient) + "\n")
	b.WriteString(markerRole + string(m.Role) + "\n")
	b.WriteString(markerIntent + string(m.Intent) + "\n")
	b.WriteString(markerLastSeen + lastSeen + "\n")
	b.WriteString(markerMessageID + id + "\n")
	b.WriteString(markerSummary + "\n")
	b.WriteString("- " + string(m.Intent) + " phase\n")
	b.WriteString("- agent-to-agent exchange\n")
	b.WriteString(markerPayload + "\n")
	b.WriteString(m.Content)
	return b.String()
}

// Parse reads a message back out of the canonical file layout.
// Everything after the payload marker line is the content, verbatim.
// Marker lines may appear in any order before the payload marker;
// unrecognized lines (the summary block) are skipped.
func Parse(text string) (Message, error) {
	payloadAt := strings.Index(text, markerPayload+"\n")
	if payloadAt < 0 {
		return Message{}, fmt.Errorf("message file: missing %s marker", strings.TrimSuffix(markerPayload, ":"))
	}
	header := text[:payloadAt]
	content := text[payloadAt+len(markerPayload)+1:]

	var m Message
	m.Content = content
	for _, line := range strings.Split(header, "\n") {
		switch {
		case strings.HasPrefix(line, markerTimestamp):
			m.Timestamp = strings.TrimPrefix(line, markerTimestamp)
		case strings.HasPrefix(line, markerFrom):
			m.Sender = Participant(strings.TrimPrefix(line, markerFrom))
		case strings.HasPrefix(line, markerTo):
			m.Recipient = Participant(strings.TrimPrefix(line, markerTo))
		case strings.HasPrefix(line, markerRole):
			m.Role = Role(strings.TrimPrefix(line, markerRole))
		case strings.HasPrefix(line, markerIntent):
			m.Intent = Intent(strings.TrimPrefix(line, markerIntent))
		case strings.HasPrefix(line, markerLastSeen):
			m.LastSeen = strings.TrimPrefix(line, markerLastSeen)
		case strings.HasPrefix(line, markerMessageID):
			raw := strings.TrimPrefix(line, markerMessageID)
			if raw != "?" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return Message{}, fmt.Errorf("message file: bad message id %q: %w", raw, err)
				}
				m.ID = id
			}
		}
	}

	if m.Timestamp == "" {
		return Message{}, fmt.Errorf("message file: missing %s field", strings.Trim(markerTimestamp, "[]: "))
	}
	return m, nil
}
