package history

import (
	"context"
	"sync"

	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
)

// MemoryStore implements Store with an in-memory map, used in tests and
// when no database path is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]chat.Turn
}

// NewMemoryStore returns an empty in-memory history log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]chat.Turn)}
}

// Append records a turn at the end of the session's log.
func (s *MemoryStore) Append(_ context.Context, turn chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return nil
}

// Read returns the session's most recent turns oldest-first.
func (s *MemoryStore) Read(_ context.Context, sessionID string, limit int) ([]chat.Turn, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.turns[sessionID]
	start := 0
	if len(stored) > limit {
		start = len(stored) - limit
	}
	out := make([]chat.Turn, len(stored)-start)
	copy(out, stored[start:])
	return out, nil
}
