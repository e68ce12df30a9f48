// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bridge-foundation/bridge/lib/clock"
	"github.com/bridge-foundation/bridge/lib/sanitize"
)

// ErrInvalidPath is returned when a requested path escapes the
// workspace root. Nothing is written.
var ErrInvalidPath = errors.New("invalid path")

// Workspace writes agent-requested files under a sandboxed root.
// Paths are sanitized before joining and the joined result is checked
// for containment regardless of the sanitize setting.
type Workspace struct {
	root     string
	sanitize bool
	clock    clock.Clock
	logger   *slog.Logger
}

// NewWorkspace creates a workspace rooted at root.
func NewWorkspace(root string, sanitizePaths bool, clk clock.Clock, logger *slog.Logger) *Workspace {
	return &Workspace{
		root:     root,
		sanitize: sanitizePaths,
		clock:    clk,
		logger:   logger,
	}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// resolve sanitizes the relative path, joins it to the root, and
// verifies the result stays inside.
func (w *Workspace) resolve(rel string) (full, sanitized string, err error) {
	if rel == "" {
		return "", "", fmt.Errorf("%w: path is required", ErrInvalidPath)
	}

	sanitized = rel
	if w.sanitize {
		sanitized = sanitize.RelativePath(rel, w.clock.Now())
	}
	if sanitized == "" {
		return "", "", fmt.Errorf("%w: nothing left of %q after sanitization", ErrInvalidPath, rel)
	}

	rootAbs, err := filepath.Abs(w.root)
	if err != nil {
		return "", "", fmt.Errorf("resolving workspace root: %w", err)
	}
	fullAbs, err := filepath.Abs(filepath.Join(w.root, filepath.FromSlash(sanitized)))
	if err != nil {
		return "", "", fmt.Errorf("resolving path: %w", err)
	}

	inside, err := filepath.Rel(rootAbs, fullAbs)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("%w: %q escapes the workspace", ErrInvalidPath, rel)
	}
	return fullAbs, sanitized, nil
}

// CreateResult reports where a file landed and, when sanitization
// rewrote the path, what the caller originally asked for.
type CreateResult struct {
	Path          string `json:"path"`
	OriginalPath  string `json:"original_path,omitempty"`
	SanitizedPath string `json:"sanitized_path,omitempty"`
}

// CreateFile writes one file under the workspace root. When
// sanitization is enabled a .meta.json sidecar records the original
// and sanitized paths for traceability.
func (w *Workspace) CreateFile(path, content string) (CreateResult, error) {
	full, sanitized, err := w.resolve(path)
	if err != nil {
		return CreateResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return CreateResult{}, fmt.Errorf("creating directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return CreateResult{}, fmt.Errorf("writing file: %w", err)
	}

	result := CreateResult{Path: full}
	if w.sanitize {
		result.OriginalPath = path
		result.SanitizedPath = sanitized
		w.writeSidecar(full, path, sanitized)
	}

	w.logger.Info("workspace file created", "path", full)
	return result, nil
}

// writeSidecar records the path mapping next to the created file.
// Failure is logged only; the file itself already landed.
func (w *Workspace) writeSidecar(full, original, sanitized string) {
	meta := struct {
		Timestamp     string `json:"timestamp"`
		OriginalPath  string `json:"original_path"`
		SanitizedPath string `json:"sanitized_path"`
	}{
		Timestamp:     w.clock.Now().UTC().Format(time.RFC3339Nano),
		OriginalPath:  original,
		SanitizedPath: sanitized,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		w.logger.Warn("sidecar encode failed", "error", err)
		return
	}
	if err := os.WriteFile(full+".meta.json", data, 0o644); err != nil {
		w.logger.Warn("sidecar write failed", "error", err, "path", full)
	}
}

// BundleEntry is one file in an apply_file_bundle request.
type BundleEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// BundleResult reports per-entry outcomes. A failed entry never fails
// the batch.
type BundleResult struct {
	Created []string `json:"created"`
	Errors  []string `json:"errors"`
}

// ApplyBundle writes a batch of files, optionally under baseDir.
func (w *Workspace) ApplyBundle(entries []BundleEntry, baseDir string) BundleResult {
	baseDir = strings.Trim(baseDir, "/")

	result := BundleResult{Created: []string{}, Errors: []string{}}
	for _, entry := range entries {
		if entry.Path == "" {
			result.Errors = append(result.Errors, "missing path")
			continue
		}
		rel := entry.Path
		if baseDir != "" {
			rel = baseDir + "/" + rel
		}
		full, _, err := w.resolve(rel)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if err := os.WriteFile(full, []byte(entry.Content), 0o644); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Created = append(result.Created, full)
	}
	return result
}
