// Package admin exposes the authenticated administrative command endpoint:
// a request names a command and supplies keyword arguments, a registered
// handler produces a textual result, and failures come back as a structured
// error field rather than an error status.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// AuthHeader carries the shared secret on every admin request.
const AuthHeader = "X-Aegis-Admin-Key"

// CommandHandler executes a named command with keyword arguments
type CommandHandler func(ctx context.Context, kwargs map[string]any) (string, error)

// commandRequest is the admin request body
type commandRequest struct {
	Kwargs map[string]any `json:"kwargs"`
}

// commandResponse is the admin response body. Exactly one of Result and
// Error is set.
type commandResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Server dispatches admin commands to registered handlers
type Server struct {
	secret []byte
	logger *slog.Logger

	mutex    sync.RWMutex
	handlers map[string]CommandHandler
}

// NewServer creates an admin command server. The shared secret is required;
// an empty secret is a configuration failure.
func NewServer(secret string, logger *slog.Logger) (*Server, error) {
	if secret == "" {
		return nil, fmt.Errorf("admin: shared secret is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		secret:   []byte(secret),
		logger:   logger,
		handlers: map[string]CommandHandler{},
	}, nil
}

// Register adds a command handler
func (s *Server) Register(name string, handler CommandHandler) error {
	if name == "" || handler == nil {
		return fmt.Errorf("admin: command name and handler are required")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.handlers[name]; ok {
		return fmt.Errorf("admin: command %q already registered", name)
	}
	s.handlers[name] = handler
	return nil
}

// ServeHTTP handles POST /commands/{name}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Warn("rejected admin request", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/commands/")
	if name == "" || strings.Contains(name, "/") {
		writeResponse(w, commandResponse{Error: "missing command name"})
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeResponse(w, commandResponse{Error: "invalid request body"})
		return
	}

	s.mutex.RLock()
	handler, ok := s.handlers[name]
	s.mutex.RUnlock()
	if !ok {
		s.logger.Warn("unknown admin command", "command", name)
		writeResponse(w, commandResponse{Error: fmt.Sprintf("unknown command: %s", name)})
		return
	}

	s.logger.Info("admin command received", "command", name)
	result, err := handler(r.Context(), req.Kwargs)
	if err != nil {
		writeResponse(w, commandResponse{Error: err.Error()})
		return
	}
	writeResponse(w, commandResponse{Result: result})
}

// authorized compares the shared-secret header in constant time
func (s *Server) authorized(r *http.Request) bool {
	provided := []byte(r.Header.Get(AuthHeader))
	if len(provided) != len(s.secret) {
		return false
	}
	return subtle.ConstantTimeCompare(provided, s.secret) == 1
}

func writeResponse(w http.ResponseWriter, resp commandResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
