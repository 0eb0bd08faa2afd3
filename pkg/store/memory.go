package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/weft/pkg/conversation"
)

// MemoryStore keeps sessions in a map. Default for tests and for the CLI
// when no database path is configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

type memorySession struct {
	messages  conversation.Conversation
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
	}
}

func (s *MemoryStore) LoadSession(_ context.Context, id string) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, errors.Wrap(ErrSessionNotFound, id)
	}
	return session.messages.Clone(), nil
}

func (s *MemoryStore) SaveSession(_ context.Context, id string, messages conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = &memorySession{
		messages:  messages.Clone(),
		updatedAt: time.Now(),
	}
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := make([]SessionInfo, 0, len(s.sessions))
	for id, session := range s.sessions {
		ret = append(ret, SessionInfo{
			ID:           id,
			UpdatedAt:    session.updatedAt,
			MessageCount: len(session.messages),
		})
	}
	return ret, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ SessionStore = (*MemoryStore)(nil)
