// Package transcript keeps an append-only audit log of conversations in
// SQLite. It is write-only: nothing in the client ever reads it back, so a
// fresh session always starts with an empty timeline.
package transcript

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bankassist/internal/chat"
)

// Store appends conversation rows to the transcript database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu             sync.Mutex
	conversationID string
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Begin opens a new conversation record and makes it the target of
// subsequent Record calls.
func (s *Store) Begin(mode, username string) error {
	id := uuid.NewString()

	_, err := s.db.Exec(
		"INSERT INTO conversations (id, started_at, mode, username) VALUES (?, ?, ?, ?)",
		id, time.Now(), mode, username,
	)
	if err != nil {
		return fmt.Errorf("failed to record conversation: %w", err)
	}

	s.mu.Lock()
	s.conversationID = id
	s.mu.Unlock()

	s.logger.Info("transcript started", "conversation_id", id)
	return nil
}

// Record appends one message to the current conversation. Failures are
// logged and swallowed: the transcript must never disturb the dialogue.
func (s *Store) Record(msg chat.Message) {
	s.mu.Lock()
	conversationID := s.conversationID
	s.mu.Unlock()

	if conversationID == "" {
		return
	}

	_, err := s.db.Exec(
		"INSERT INTO messages (conversation_id, message_id, role, content, intent, is_error, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		conversationID, msg.ID, msg.Role, msg.Content, msg.Intent, msg.IsError, msg.Timestamp,
	)
	if err != nil {
		s.logger.Warn("failed to record message", "error", err)
	}
}

// Close ends the current conversation; later Record calls are dropped until
// the next Begin.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = ""
}
