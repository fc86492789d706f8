package chat

import "sync"

// Session is the ordered, append-only log of turns for one conversation.
// It lives only as long as the process and is never persisted.
type Session struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewSession returns an empty session, optionally seeded with turns
// (typically a single system turn).
func NewSession(seed ...Turn) *Session {
	turns := make([]Turn, 0, len(seed)+16)
	turns = append(turns, seed...)
	return &Session{turns: turns}
}

// Append adds a turn at the end of the log.
func (s *Session) Append(turn Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()
}

// Turns returns a chronological snapshot of the log.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Len returns the number of committed turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear discards every turn.
func (s *Session) Clear() {
	s.mu.Lock()
	s.turns = s.turns[:0:0]
	s.mu.Unlock()
}
