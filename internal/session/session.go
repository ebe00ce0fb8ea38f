package session

import (
	"sync"
	"time"

	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
)

// Session is the server-side identity of one ongoing conversation. Its
// context window is mutated only while the session's exclusive lock is
// held; lastActive and inFlight are guarded by the owning store's mutex.
type Session struct {
	ID     string
	Window *chat.ContextWindow

	mu         sync.Mutex
	lastActive time.Time
	inFlight   bool
}

// Lock acquires exclusive generation access to the session. Waiters are
// served in arrival order under contention, which is what keeps turns in
// submission order for a busy session.
func (s *Session) Lock() {
	s.mu.Lock()
}

// Unlock releases generation access.
func (s *Session) Unlock() {
	s.mu.Unlock()
}
