// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bridge-foundation/bridge/bridge/schema"
)

// Config is the service configuration, loaded from a single YAML
// file. Only Identity is required; everything else has a default
// derived from it.
type Config struct {
	// Identity selects which participant this process is:
	// "controller" or "executor".
	Identity schema.Participant `yaml:"identity"`

	// ListenAddr is the TCP address for the HTTP API.
	// Default: localhost:8080 (controller), localhost:8081 (executor).
	ListenAddr string `yaml:"listen_addr"`

	// PeerURL is the base URL of the counterpart service.
	// Default: the peer's default listen address.
	PeerURL string `yaml:"peer_url"`

	// DataDir holds durable state: message files, state.json,
	// session.json, conversation.md, project.log, attachments.
	// Default: "messages".
	DataDir string `yaml:"data_dir"`

	// WorkspaceDir is the sandboxed root for create_file and
	// apply_file_bundle writes. Default: "workspace".
	WorkspaceDir string `yaml:"workspace_dir"`

	// SocketPath is the Unix control socket path.
	// Default: <data_dir>/bridge-<identity>.sock.
	SocketPath string `yaml:"socket_path"`

	// PolicyFile is an optional JSONC content-policy file. When
	// empty the built-in policy applies.
	PolicyFile string `yaml:"policy_file"`

	// SanitizePaths toggles workspace path sanitization. Default
	// true; containment checks run regardless.
	SanitizePaths *bool `yaml:"sanitize_paths"`
}

const (
	defaultControllerAddr = "localhost:8080"
	defaultExecutorAddr   = "localhost:8081"
)

// LoadConfig reads and validates a YAML config file and applies
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.applyDefaults(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyDefaults() error {
	if !c.Identity.Valid() {
		return fmt.Errorf("config: identity must be %q or %q, got %q",
			schema.Controller, schema.Executor, c.Identity)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultControllerAddr
		if c.Identity == schema.Executor {
			c.ListenAddr = defaultExecutorAddr
		}
	}
	if c.PeerURL == "" {
		c.PeerURL = "http://" + defaultExecutorAddr
		if c.Identity == schema.Executor {
			c.PeerURL = "http://" + defaultControllerAddr
		}
	}
	if c.DataDir == "" {
		c.DataDir = "messages"
	}
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = "workspace"
	}
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(c.DataDir, fmt.Sprintf("bridge-%s.sock", c.Identity))
	}
	if c.SanitizePaths == nil {
		enabled := true
		c.SanitizePaths = &enabled
	}
	return nil
}

// NewLogger creates the standard service logger: JSON to stderr.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
