// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package sanitize

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// maxComponentLength caps each path segment.
const maxComponentLength = 100

// forbidden are the characters removed from path components. This is
// the Windows-forbidden set; removing them keeps workspace trees
// portable across filesystems.
const forbidden = `\/:*?"<>|`

// reservedNames are device names that Windows treats specially
// regardless of extension. A component matching one of these (case
// insensitive) is replaced with a timestamped fallback.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// RelativePath sanitizes a relative path: separators are normalized to
// forward slashes, empty, ".", and ".." segments are discarded, and
// each remaining component is sanitized with Component. The now
// parameter feeds the timestamped fallback for components that
// sanitize to nothing.
func RelativePath(rel string, now time.Time) string {
	parts := strings.Split(strings.ReplaceAll(rel, `\`, "/"), "/")

	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		cleaned = append(cleaned, Component(part, now))
	}
	return strings.Join(cleaned, "/")
}

// Component sanitizes a single path segment:
//
//   - trim leading/trailing spaces and dots
//   - NFKD-normalize and strip non-ASCII runes (removes diacritics)
//   - replace interior spaces with hyphens
//   - remove forbidden filesystem characters and control characters
//   - collapse repeated hyphens, then trim edge dots again
//   - replace reserved device names (and empty results) with a
//     timestamped fallback
//   - cap the length at 100 characters
func Component(name string, now time.Time) string {
	// Surrounding spaces are trimmed before the space-to-hyphen
	// rewrite, so " notes... " becomes "notes", not "-notes...-".
	name = strings.Trim(name, " .")

	// NFKD decomposition splits accented characters into base rune +
	// combining mark; dropping everything outside ASCII then strips
	// the marks, matching an ascii-ignore transcode.
	decomposed := norm.NFKD.String(name)

	var builder strings.Builder
	for _, r := range decomposed {
		if r >= 128 {
			continue
		}
		if r < 32 {
			continue
		}
		if r == ' ' {
			builder.WriteByte('-')
			continue
		}
		if strings.ContainsRune(forbidden, r) {
			continue
		}
		builder.WriteRune(r)
	}

	cleaned := builder.String()
	for strings.Contains(cleaned, "--") {
		cleaned = strings.ReplaceAll(cleaned, "--", "-")
	}
	cleaned = strings.Trim(cleaned, " .")

	if _, reserved := reservedNames[strings.ToUpper(cleaned)]; reserved || cleaned == "" {
		cleaned = "file-" + now.UTC().Format("20060102150405")
	}

	if len(cleaned) > maxComponentLength {
		cleaned = cleaned[:maxComponentLength]
	}
	return cleaned
}
