package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
)

const (
	// DefaultMaxIdle is how long a session may sit untouched before the
	// cleanup sweep removes it.
	DefaultMaxIdle = 30 * time.Minute

	// DefaultMaxSessions caps the registry; beyond it the least recently
	// active idle session is evicted to keep memory bounded.
	DefaultMaxSessions = 10000
)

// Store is the single authority for session creation, lookup and eviction.
// All mutation goes through its synchronized accessors; sessions are never
// shared by value.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	tokenBudget int
	maxSessions int
}

// NewStore creates a registry whose sessions carry context windows with the
// given token budget. Non-positive limits fall back to the defaults.
func NewStore(tokenBudget, maxSessions int) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Store{
		sessions:    make(map[string]*Session),
		tokenBudget: tokenBudget,
		maxSessions: maxSessions,
	}
}

// GetOrCreate returns the session registered under id, creating it if
// unknown. An empty id mints a fresh UUID. Exactly one session object ever
// exists per id regardless of concurrent callers.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			sess.lastActive = time.Now()
			return sess
		}
	} else {
		id = uuid.NewString()
	}

	if len(s.sessions) >= s.maxSessions {
		s.evictLeastRecentLocked()
	}

	sess := &Session{
		ID:         id,
		Window:     chat.NewContextWindow(s.tokenBudget),
		lastActive: time.Now(),
	}
	s.sessions[id] = sess
	return sess
}

// Touch refreshes a session's last-active timestamp.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.lastActive = time.Now()
	}
}

// SetInFlight records whether a generation is running for the session,
// shielding it from eviction for the duration.
func (s *Store) SetInFlight(id string, inFlight bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.inFlight = inFlight
		if !inFlight {
			sess.lastActive = time.Now()
		}
	}
}

// Reset clears the session's context window without destroying the session
// or its durable history. Resetting an unknown id is a no-op.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		sess.lastActive = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	// The window is only mutated under the session lock. It has to be
	// taken after s.mu is released: Submit re-enters the store while
	// holding the session lock, so nesting the other way inverts the
	// lock order.
	sess.Lock()
	sess.Window.Reset()
	sess.Unlock()
}

// EvictIdle removes sessions inactive longer than maxIdle and reports how
// many were dropped. Sessions with a generation in flight are skipped.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.inFlight {
			continue
		}
		if now.Sub(sess.lastActive) > maxIdle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of registered sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictLeastRecentLocked drops the least recently active session that has
// no generation in flight. Caller holds s.mu.
func (s *Store) evictLeastRecentLocked() {
	var victimID string
	var victimAt time.Time
	for id, sess := range s.sessions {
		if sess.inFlight {
			continue
		}
		if victimID == "" || sess.lastActive.Before(victimAt) {
			victimID = id
			victimAt = sess.lastActive
		}
	}
	if victimID != "" {
		delete(s.sessions, victimID)
	}
}
