package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/weft/pkg/conversation"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	updated_at TIMESTAMP NOT NULL,
	message_count INTEGER NOT NULL,
	data BLOB NOT NULL
);
`

// SQLiteStore persists sessions as one JSON blob per session id.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open session database")
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create sessions table")
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (conversation.Conversation, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}

	var messages conversation.Conversation
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, errors.Wrap(err, "failed to decode session")
	}

	return messages, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, id string, messages conversation.Conversation) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, updated_at, message_count, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at,
			message_count = excluded.message_count, data = excluded.data`,
		id, time.Now().UTC(), len(messages), data)
	if err != nil {
		return errors.Wrap(err, "failed to save session")
	}

	log.Debug().Str("session_id", id).Int("messages", len(messages)).Msg("saved session")
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, updated_at, message_count FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.UpdatedAt, &info.MessageCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan session row")
		}
		ret = append(ret, info)
	}

	return ret, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ SessionStore = (*SQLiteStore)(nil)
