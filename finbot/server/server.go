// Package server exposes the chat UI and its JSON API over HTTP. Each
// browser gets a cookie-keyed session with its own conversation memory.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finbot-ai/finbot/finbot/chat"
	"github.com/finbot-ai/finbot/finbot/config"
)

const sessionCookie = "finbot_session"

// Server manages the HTTP server, routes, and the live session table.
type Server struct {
	router *chat.Router
	server *http.Server
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*chat.Session
}

func New(cfg config.ServerConfig, router *chat.Router, logger zerolog.Logger) *Server {
	s := &Server{
		router:   router,
		logger:   logger.With().Str("component", "server").Logger(),
		sessions: make(map[string]*chat.Session),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // LLM turns with a tool round take a while
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// session returns the caller's session, creating one and setting the cookie
// on first contact. A well-formed cookie with no live session is resumed
// under its old identifier, so the tool loop can reload the audited context
// that survived a restart.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if sess, ok := s.sessions[cookie.Value]; ok {
			return sess
		}
		if _, err := uuid.Parse(cookie.Value); err == nil {
			sess := chat.NewSessionWithID(cookie.Value, s.router, s.logger)
			s.sessions[sess.ID()] = sess
			s.logger.Debug().Str("session_id", sess.ID()).Msg("session resumed")
			return sess
		}
	}

	sess := chat.NewSession(s.router, s.logger)
	s.sessions[sess.ID()] = sess
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Debug().Str("session_id", sess.ID()).Msg("session created")
	return sess
}
