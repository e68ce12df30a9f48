// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{
		"zulu":   1,
		"alpha":  "two",
		"middle": []any{"a", "b"},
	}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("same value produced different encodings:\n%x\n%x", first, second)
	}
}

func TestUnmarshalAnyMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"key": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	nested, ok := decoded["nested"].(map[string]any)
	if !ok {
		t.Fatalf("nested value decoded as %T, want map[string]any", decoded["nested"])
	}
	if nested["key"] != "value" {
		t.Errorf("nested[key] = %v, want %q", nested["key"], "value")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	type payload struct {
		Action string `json:"action"`
		ID     int64  `json:"id"`
	}

	var buffer bytes.Buffer
	if err := NewEncoder(&buffer).Encode(payload{Action: "decide", ID: 7}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got payload
	if err := NewDecoder(&buffer).Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Action != "decide" || got.ID != 7 {
		t.Errorf("round trip = %+v, want {decide 7}", got)
	}
}
