// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrInvalidContent is returned by Policy.Validate for content that
// fails the deny list or the minimum-length requirement. Rejected
// content never consumes a message id.
var ErrInvalidContent = errors.New("invalid message content")

// DefaultMinContentLength is the minimum accepted content length.
const DefaultMinContentLength = 5

// defaultDenyPatterns is the built-in deny list. The "test" entry is
// inherited configuration: it rejects any content containing that
// substring. Deployments that need the word override the list in the
// policy file.
var defaultDenyPatterns = []string{"test"}

// Policy is the content validation policy: a deny list of
// case-insensitive patterns plus a minimum length.
type Policy struct {
	minLength int
	patterns  []*regexp.Regexp
	sources   []string
}

// policyFile is the on-disk shape of a policy file. The file is JSONC
// so operators can annotate individual deny patterns.
type policyFile struct {
	DenyPatterns     []string `json:"deny_patterns"`
	MinContentLength *int     `json:"min_content_length"`
}

// DefaultPolicy returns the built-in policy: deny patterns
// ["test"], minimum length 5.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(defaultDenyPatterns, DefaultMinContentLength)
	if err != nil {
		panic(fmt.Sprintf("schema: built-in deny patterns invalid: %v", err))
	}
	return p
}

// NewPolicy compiles the given deny patterns. Patterns are matched
// case-insensitively against the whole content. A non-positive
// minLength falls back to DefaultMinContentLength.
func NewPolicy(denyPatterns []string, minLength int) (*Policy, error) {
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}
	compiled := make([]*regexp.Regexp, 0, len(denyPatterns))
	for _, pattern := range denyPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling deny pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &Policy{
		minLength: minLength,
		patterns:  compiled,
		sources:   append([]string(nil), denyPatterns...),
	}, nil
}

// LoadPolicy reads a JSONC policy file. Fields left out of the file
// keep their defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var parsed policyFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}

	patterns := parsed.DenyPatterns
	if patterns == nil {
		patterns = defaultDenyPatterns
	}
	minLength := DefaultMinContentLength
	if parsed.MinContentLength != nil {
		minLength = *parsed.MinContentLength
	}
	return NewPolicy(patterns, minLength)
}

// Validate checks content against the policy. The returned error
// matches ErrInvalidContent via errors.Is and describes which rule
// failed.
func (p *Policy) Validate(content string) error {
	if len(content) < p.minLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrInvalidContent, p.minLength)
	}
	lowered := strings.ToLower(content)
	for i, re := range p.patterns {
		if re.MatchString(lowered) {
			return fmt.Errorf("%w: matches deny pattern %q", ErrInvalidContent, p.sources[i])
		}
	}
	return nil
}

// MinLength returns the configured minimum content length.
func (p *Policy) MinLength() int {
	return p.minLength
}
