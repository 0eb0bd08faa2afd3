package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/weft/pkg/conversation"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionInfo summarizes one persisted session.
type SessionInfo struct {
	ID           string    `json:"id"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// SessionStore persists named conversation sessions. The controller only
// ever uses it to seed a fresh conversation and to save the live history;
// everything else about the backend is out of its hands.
type SessionStore interface {
	LoadSession(ctx context.Context, id string) (conversation.Conversation, error)
	SaveSession(ctx context.Context, id string, messages conversation.Conversation) error
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	Close() error
}
