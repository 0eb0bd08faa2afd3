package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/weft/pkg/conversation"
)

func testConversation() conversation.Conversation {
	return conversation.Conversation{
		conversation.NewChatMessage(conversation.RoleUser, "hello"),
		conversation.NewChatMessage(conversation.RoleAssistant, "hi"),
	}
}

func runStoreTests(t *testing.T, s SessionStore) {
	ctx := context.Background()

	_, err := s.LoadSession(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	original := testConversation()
	require.NoError(t, s.SaveSession(ctx, "s1", original))

	loaded, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, original[0].ID, loaded[0].ID)
	require.Equal(t, "hello", loaded[0].Text)
	require.Equal(t, conversation.RoleAssistant, loaded[1].Role)

	// overwrite
	require.NoError(t, s.SaveSession(ctx, "s1", original[:1]))
	loaded, err = s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	require.NoError(t, s.SaveSession(ctx, "s2", original))
	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer func() {
		_ = s.Close()
	}()
	runStoreTests(t, s)
}

func TestMemoryStoreIsolatesSavedMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	original := testConversation()
	require.NoError(t, s.SaveSession(ctx, "s1", original))

	original[0].Text = "mutated"

	loaded, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "hello", loaded[0].Text)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	runStoreTests(t, s)
}
