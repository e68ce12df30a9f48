// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bridge-foundation/bridge/bridge/schema"
)

// Tail clamps for the log and conversation endpoints.
const (
	defaultLogTail          = 200
	maxLogTail              = 5000
	defaultConversationTail = 50
	maxConversationTail     = 1000
)

// Handler builds the HTTP API. The receive endpoint is registered
// only on the executor side; the controller has no peer that forwards
// to it over HTTP.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/send_message", s.handleSendMessage)
	mux.HandleFunc("POST /api/decision", s.handleDecision)
	mux.HandleFunc("POST /api/set_yes_all", s.handleSetYesAll)
	mux.HandleFunc("POST /api/start_session", s.handleStartSession)
	mux.HandleFunc("POST /api/create_file", s.handleCreateFile)
	mux.HandleFunc("POST /api/apply_file_bundle", s.handleApplyBundle)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("GET /api/pending_actions", s.handlePendingActions)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/conversation", s.handleConversation)

	if s.identity == schema.Executor {
		mux.HandleFunc("POST /api/receive_message", s.handleReceiveMessage)
	}

	return s.withRecovery(mux)
}

// withRecovery converts handler panics into a structured 500 payload
// so an unexpected fault never kills the accepting process.
func (s *Service) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidContent),
		errors.Is(err, ErrAlreadyDecided),
		errors.Is(err, ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.Is(err, ErrActionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrWatchdogExceeded):
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %v", ErrInvalidRequest, err)
	}
	return nil
}

type sendMessageRequest struct {
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Role      string      `json:"role"`
	Intent    string      `json:"intent"`
	Content   string      `json:"content"`
	LastSeen  string      `json:"last_seen"`
	ID        json.Number `json:"id"`
}

type sendMessageResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Approved  bool            `json:"approved"`
	ActionID  int64           `json:"action_id,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
	Decision  schema.Decision `json:"decision,omitempty"`
}

func (s *Service) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body sendMessageRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.Send(r.Context(), SendRequest{
		Sender:     schema.Participant(body.Sender),
		Recipient:  schema.Participant(body.Recipient),
		Role:       schema.Role(body.Role),
		Intent:     schema.Intent(body.Intent),
		Content:    body.Content,
		LastSeen:   body.LastSeen,
		ExternalID: body.ID.String(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := sendMessageResponse{
		Success:   true,
		MessageID: result.MessageID,
		Timestamp: result.Timestamp,
		Approved:  result.Approved,
		ActionID:  result.ActionID,
		Duplicate: result.Duplicate,
		Decision:  result.Decision,
	}
	switch {
	case result.Duplicate:
		resp.Message = "Duplicate message ignored"
	case result.Decision != "":
		resp.Message = "Decision applied"
	case result.Approved:
		resp.Message = "Message sent successfully"
	default:
		resp.Message = "Message pending approval"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleReceiveMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID        int64  `json:"id"`
		Timestamp string `json:"timestamp"`
		Role      string `json:"role"`
		Intent    string `json:"intent"`
		Content   string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	err := s.Receive(r.Context(), ReceiveRequest{
		ID:        body.ID,
		Timestamp: body.Timestamp,
		Role:      schema.Role(body.Role),
		Intent:    schema.Intent(body.Intent),
		Content:   body.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "processed": true})
}

func (s *Service) handleDecision(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActionID  int64  `json:"action_id"`
		Decision  string `json:"decision"`
		Rationale string `json:"rationale"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	status, err := s.ApplyDecision(r.Context(), body.ActionID, schema.Decision(strings.ToLower(body.Decision)), body.Rationale)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool          `json:"success"`
		Status  schema.Status `json:"status"`
	}{true, status})
}

func (s *Service) handleSetYesAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Agent string `json:"agent"`
		Value bool   `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	participant := schema.Participant(strings.ToLower(body.Agent))
	if err := s.SetPolicy(participant, body.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool               `json:"success"`
		Agent   schema.Participant `json:"agent"`
		Value   bool               `json:"value"`
	}{true, participant, body.Value})
}

func (s *Service) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Objective string            `json:"objective"`
		Mode      string            `json:"mode"`
		Roles     map[string]string `json:"roles"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	roles := make(map[schema.Participant]schema.Role, len(body.Roles))
	for participant, role := range body.Roles {
		roles[schema.Participant(strings.ToLower(participant))] = schema.Role(role)
	}

	info, err := s.StartSession(body.Objective, body.Mode, roles)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}{true, "Session started successfully", info.Timestamp})
}

func (s *Service) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.CreateFile(body.Path, body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		CreateResult
	}{true, "File created: " + result.SanitizedPath, result})
}

func (s *Service) handleApplyBundle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Files   []BundleEntry `json:"files"`
		BaseDir string        `json:"base_dir"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if len(body.Files) == 0 {
		writeError(w, fmt.Errorf("%w: files[] required", ErrInvalidRequest))
		return
	}

	result := s.ApplyBundle(body.Files, body.BaseDir)
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		BundleResult
	}{true, result})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Service) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Metrics())
}

func (s *Service) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages := s.Messages()
	writeJSON(w, http.StatusOK, struct {
		Success  bool             `json:"success"`
		Messages []schema.Message `json:"messages"`
		Count    int              `json:"count"`
	}{true, messages, len(messages)})
}

func (s *Service) handlePendingActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Success bool                   `json:"success"`
		Pending []schema.PendingAction `json:"pending"`
	}{true, s.PendingActions()})
}

func (s *Service) handleLogs(w http.ResponseWriter, r *http.Request) {
	tail := parseTail(r, defaultLogTail, maxLogTail)
	lines, err := s.TailLog(tail)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func (s *Service) handleConversation(w http.ResponseWriter, r *http.Request) {
	tail := parseTail(r, defaultConversationTail, maxConversationTail)
	entries, err := s.TailConversation(tail)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []ConversationEntry{}
	}
	writeJSON(w, http.StatusOK, struct {
		Success      bool                `json:"success"`
		Conversation []ConversationEntry `json:"conversation"`
		Count        int                 `json:"count"`
	}{true, entries, len(entries)})
}

// parseTail reads and clamps the ?tail=N query parameter. Anything
// unparseable falls back to the default.
func parseTail(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("tail")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}
