package chat

import "sync"

// Session is the small per-viewer context passed explicitly into engine
// calls: the last message id this viewer's poll cycle has observed per trip
// (drives the new-message notification) and the edit-mode flags keyed by
// (trip, message id). It is goroutine-safe.
type Session struct {
	User string
	Role Role

	mu       sync.Mutex
	lastSeen map[string]string // trip -> newest observed message id
	editing  map[string]bool   // "<trip>\x00<msgID>" -> edit mode
}

// NewSession creates a session context for one viewer.
func NewSession(user string, role Role) *Session {
	return &Session{
		User:     user,
		Role:     role,
		lastSeen: make(map[string]string),
		editing:  make(map[string]bool),
	}
}

// LastSeenMessage returns the newest message id this session has observed on
// the trip, and whether any has been observed yet.
func (s *Session) LastSeenMessage(trip string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.lastSeen[trip]
	return id, ok
}

// SetLastSeenMessage records the newest observed message id for the trip.
func (s *Session) SetLastSeenMessage(trip, msgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[trip] = msgID
}

// StartEditing marks the message as being edited by this session.
func (s *Session) StartEditing(trip, msgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing[trip+"\x00"+msgID] = true
}

// StopEditing clears the edit flag for the message.
func (s *Session) StopEditing(trip, msgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.editing, trip+"\x00"+msgID)
}

// IsEditing reports whether this session has the message in edit mode.
func (s *Session) IsEditing(trip, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing[trip+"\x00"+msgID]
}
