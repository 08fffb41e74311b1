package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/troupelabs/troupe/pkg/models"
)

// StoreMessage appends one message to a session's conversation log.
// Messages are never updated or reordered after insertion.
func (db *DB) StoreMessage(sessionID string, m *models.Message) error {
	if m.ID == "" {
		return fmt.Errorf("store message: empty message ID")
	}

	var parts sql.NullString
	if len(m.Parts) > 0 {
		b, err := json.Marshal(m.Parts)
		if err != nil {
			return fmt.Errorf("marshal message parts: %w", err)
		}
		parts = sql.NullString{String: string(b), Valid: true}
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO messages (id, session_id, role, content, parts, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, sessionID, string(m.Role), m.Content, parts, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// GetConversationHistory returns a session's messages in insertion order.
func (db *DB) GetConversationHistory(sessionID string) ([]models.Message, error) {
	rows, err := db.Query(`
		SELECT id, role, content, parts, created_at
		FROM messages WHERE session_id = ? ORDER BY rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get conversation history: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var parts sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &parts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if parts.Valid {
			if err := json.Unmarshal([]byte(parts.String), &m.Parts); err != nil {
				return nil, fmt.Errorf("decode message parts: %w", err)
			}
		}
		m.CreatedAt, _ = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessageCount returns the number of messages stored for a session.
func (db *DB) MessageCount(sessionID string) (int, error) {
	row := db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
