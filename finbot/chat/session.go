package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Greeting opens every session before any user input.
const Greeting = "Hello this is FinBot! Your all in one Customisable Financial Assistant. Feel free to ask me any questions."

// Session processes one user's turns sequentially. It owns its memory
// exclusively; turns never interleave within a session.
type Session struct {
	id     string
	router *Router
	memory *Memory
	logger zerolog.Logger

	mu sync.Mutex
}

func NewSession(router *Router, logger zerolog.Logger) *Session {
	return NewSessionWithID(uuid.NewString(), router, logger)
}

// NewSessionWithID builds a session under a caller-chosen identifier. The
// server uses it to resume a returning browser under its existing cookie, so
// the tool loop can reload that session's audited context.
func NewSessionWithID(id string, router *Router, logger zerolog.Logger) *Session {
	memory := NewMemory()
	memory.SeedAssistant(Greeting)
	return &Session{
		id:     id,
		router: router,
		memory: memory,
		logger: logger.With().Str("component", "session").Str("session_id", id).Logger(),
	}
}

func (s *Session) ID() string { return s.id }

// Submit runs one full turn: route the query, then append exactly one turn to
// memory. Failed paths still produce a reply, so the append happens on every
// submit.
func (s *Session) Submit(ctx context.Context, query string) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, intermediate := s.router.Route(ctx, s.id, query, s.memory)
	s.memory.AppendTurn(query, reply.Text, intermediate)

	s.logger.Debug().
		Str("kind", string(reply.Kind)).
		Int("transcript_len", s.memory.Len()).
		Msg("turn completed")
	return reply
}

// History returns a copy of the session transcript.
func (s *Session) History() []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Pairs()
}
