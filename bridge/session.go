// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bridge-foundation/bridge/bridge/schema"
	"github.com/bridge-foundation/bridge/lib/statefile"
)

// SessionInfo is the durable session descriptor. Its timestamp doubles
// as the session id.
type SessionInfo struct {
	Timestamp string                             `json:"timestamp"`
	Objective string                             `json:"objective"`
	Mode      string                             `json:"mode"`
	Roles     map[schema.Participant]schema.Role `json:"roles"`
	Status    string                             `json:"status"`
}

// StartSession activates a new session: counters and backoff reset,
// roles reassign, and the session descriptor is written. Returns the
// descriptor; its timestamp is the session id.
func (s *Service) StartSession(objective, mode string, roles map[schema.Participant]schema.Role) (SessionInfo, error) {
	if objective == "" {
		return SessionInfo{}, fmt.Errorf("%w: objective is required", ErrInvalidRequest)
	}
	if mode == "" {
		mode = "collaborative"
	}
	for participant, role := range roles {
		if !participant.Valid() || !role.Valid() {
			return SessionInfo{}, fmt.Errorf("%w: invalid session role %s=%s", ErrInvalidRequest, participant, role)
		}
	}

	s.sessionMu.Lock()
	for participant, role := range roles {
		s.roles[participant] = role
	}
	assigned := make(map[schema.Participant]schema.Role, len(s.roles))
	for participant, role := range s.roles {
		assigned[participant] = role
	}
	s.sessionMu.Unlock()

	s.monitor.Reset()
	s.monitor.SetSessionActive(true)
	s.limiter.Reset()
	s.store.ResetValidCount()

	info := SessionInfo{
		Timestamp: s.now(),
		Objective: objective,
		Mode:      mode,
		Roles:     assigned,
		Status:    "active",
	}
	if err := statefile.Save(s.sessionPath(), info); err != nil {
		return SessionInfo{}, fmt.Errorf("writing session file: %w", err)
	}

	s.store.AppendLog("info", "session started: "+objective)
	s.logger.Info("session started", "objective", objective, "mode", mode)
	return info, nil
}

// restoreSession reloads the session descriptor at startup so an
// active session survives a process restart.
func (s *Service) restoreSession() {
	var info SessionInfo
	if err := statefile.Load(s.sessionPath(), &info); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("session restore failed", "error", err)
		}
		return
	}

	if info.Status == "active" {
		s.monitor.SetSessionActive(true)
	}
	s.sessionMu.Lock()
	for participant, role := range info.Roles {
		if participant.Valid() && role.Valid() {
			s.roles[participant] = role
		}
	}
	s.sessionMu.Unlock()

	s.logger.Info("session restored", "status", info.Status, "objective", info.Objective)
}

func (s *Service) sessionPath() string {
	return filepath.Join(s.config.DataDir, "session.json")
}
