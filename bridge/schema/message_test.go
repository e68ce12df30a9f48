// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "testing"

func TestParticipantPeer(t *testing.T) {
	if got := Controller.Peer(); got != Executor {
		t.Errorf("Controller.Peer() = %q, want %q", got, Executor)
	}
	if got := Executor.Peer(); got != Controller {
		t.Errorf("Executor.Peer() = %q, want %q", got, Controller)
	}
}

func TestQuickDecision(t *testing.T) {
	cases := []struct {
		token string
		want  Decision
		ok    bool
	}{
		{"1", DecisionYes, true},
		{"2", DecisionYesAll, true},
		{"3", DecisionNo, true},
		{"4", "", false},
		{"yes", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := QuickDecision(tc.token)
		if got != tc.want || ok != tc.ok {
			t.Errorf("QuickDecision(%q) = %q, %v, want %q, %v", tc.token, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIntentValid(t *testing.T) {
	for _, intent := range []Intent{IntentPlan, IntentDesign, IntentCode, IntentReview, IntentTest, IntentDone, IntentManual, IntentMessage} {
		if !intent.Valid() {
			t.Errorf("Intent(%q).Valid() = false, want true", intent)
		}
	}
	if Intent("deploy").Valid() {
		t.Error(`Intent("deploy").Valid() = true, want false`)
	}
}
