package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nanohit/nocturne/pkg/dispatch"
)

// chatRequest is the body of /chat, /stream and the /ws opening frame
type chatRequest struct {
	Message string          `json:"message"`
	Prompt  string          `json:"prompt"`
	Model   string          `json:"model"`
	History []dispatch.Turn `json:"history"`
}

// toDispatch normalizes the inbound body. "prompt" is accepted as an
// alias for "message".
func (c *chatRequest) toDispatch() (dispatch.Request, error) {
	message := c.Message
	if message == "" {
		message = c.Prompt
	}
	if message == "" {
		return dispatch.Request{}, fmt.Errorf("no message")
	}
	return dispatch.Request{
		Message: message,
		Model:   c.Model,
		History: c.History,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDispatchError maps dispatcher errors onto the boundary statuses:
// 503 for a fully exhausted pool, 500 for everything else.
func writeDispatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, dispatch.ErrExhausted) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	var upstream *dispatch.UpstreamError
	if errors.As(err, &upstream) {
		writeError(w, http.StatusInternalServerError, "API error: "+upstream.Body)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// handleChat serves buffered chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := body.toDispatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, acct, err := s.dispatcher.Chat(r.Context(), req)
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	remaining := 0
	if acct != nil {
		remaining = acct.Remaining()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"response":  text,
		"remaining": remaining,
	})
}

// sseSink relays dispatcher events as text/event-stream frames
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseSink) Begin(remaining int) error {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("X-Remaining", strconv.Itoa(remaining))
	s.w.WriteHeader(http.StatusOK)
	s.started = true
	s.flush()
	return nil
}

func (s *sseSink) Event(content string) error {
	data, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseSink) Done() error {
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
	return err
}

func (s *sseSink) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// handleStream serves streaming chat over SSE
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := body.toDispatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	sink := &sseSink{w: w, flusher: flusher}

	if _, err := s.dispatcher.Stream(r.Context(), req, sink); err != nil && !sink.started {
		writeDispatchError(w, err)
	}
}

// handleStatus serves pool introspection
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Status())
}

// handleHealth is the liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// addAccountRequest is the /admin/add-account body
type addAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleAddAccount appends a credential to the running pool
func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.options.AdminSecret == "" {
		writeError(w, http.StatusForbidden, "admin endpoints are disabled")
		return
	}
	if r.Header.Get("X-Admin-Secret") != s.options.AdminSecret {
		writeError(w, http.StatusUnauthorized, "invalid admin secret")
		return
	}

	var body addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	email := strings.TrimSpace(body.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	password := body.Password
	if password == "" {
		password = s.options.AdminDefaultPassword
	}
	if password == "" {
		writeError(w, http.StatusBadRequest, "password required")
		return
	}

	if err := s.pool.Add(email, password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"total_accounts": s.pool.Size(),
	})
}
