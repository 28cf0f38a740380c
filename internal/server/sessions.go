// Package server exposes the chat surface over a poll-based HTTP API:
// login, timeline polling, message submission, typed actions (reactions,
// edits, deletes, typing), and attachment download. Each request is one
// atomic read-mutate-write cycle against the shared document.
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripchat/chat-app/internal/chat"
	"github.com/tripchat/chat-app/internal/refresh"
)

// sessionTTL is how long a session survives without activity.
const sessionTTL = 1 * time.Hour

// Session is one authenticated client: its viewer context for the chat
// engine and its cooperative refresh loop.
type Session struct {
	Token      string
	Trip       string
	Chat       *chat.Session
	Refresh    *refresh.Loop
	CreatedAt  time.Time
	LastActive time.Time
}

// SessionRegistry holds active sessions in memory. Sessions expire after
// sessionTTL of inactivity and are swept lazily on lookup.
type SessionRegistry struct {
	mu       sync.Mutex
	byToken  map[string]*Session
	interval time.Duration // refresh loop interval for new sessions
}

// NewSessionRegistry creates an empty registry; refreshEvery seeds each new
// session's refresh loop.
func NewSessionRegistry(refreshEvery time.Duration) *SessionRegistry {
	return &SessionRegistry{
		byToken:  make(map[string]*Session),
		interval: refreshEvery,
	}
}

// Create registers a new session for the viewer and returns it.
func (r *SessionRegistry) Create(trip, user string, role chat.Role) *Session {
	now := time.Now()
	s := &Session{
		Token:      uuid.NewString(),
		Trip:       trip,
		Chat:       chat.NewSession(user, role),
		Refresh:    refresh.NewLoop(r.interval),
		CreatedAt:  now,
		LastActive: now,
	}
	r.mu.Lock()
	r.byToken[s.Token] = s
	r.mu.Unlock()
	return s
}

// Get returns the session for token, refreshing its activity timestamp.
// Expired or unknown tokens return nil.
func (r *SessionRegistry) Get(token string) *Session {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return nil
	}
	if now.Sub(s.LastActive) > sessionTTL {
		delete(r.byToken, token)
		return nil
	}
	s.LastActive = now
	return s
}

// Delete removes a session.
func (r *SessionRegistry) Delete(token string) {
	r.mu.Lock()
	delete(r.byToken, token)
	r.mu.Unlock()
}
