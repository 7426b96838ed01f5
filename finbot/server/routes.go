package server

import (
	"encoding/json"
	"net/http"

	"github.com/finbot-ai/finbot/finbot/chat"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/health", s.handleHealth)

	// JSON 404 for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	return mux
}

type chatRequest struct {
	UserInput string `json:"user_input"`
}

type chatResponse struct {
	Response string `json:"response"`
	Kind     string `json:"kind"`
}

// handleChat runs one conversational turn for the caller's session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserInput == "" {
		writeJSONError(w, http.StatusBadRequest, "user_input is required")
		return
	}

	sess := s.session(w, r)
	reply := sess.Submit(r.Context(), req.UserInput)

	writeJSON(w, http.StatusOK, chatResponse{
		Response: reply.Text,
		Kind:     string(reply.Kind),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(chatPage(chat.Greeting)))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound, "the requested endpoint does not exist")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
