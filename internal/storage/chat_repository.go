package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Chat timestamps are stored as Unix milliseconds.

// SaveTurn upserts the session row and appends messages in one
// transaction. An empty session title never overwrites a stored one.
func (db *DB) SaveTurn(ctx context.Context, session *ChatSession, messages []ChatMessage) error {
	if session == nil || session.SessionID == "" {
		return errors.New("session id is required")
	}

	start := time.Now()
	lastActive := session.LastActive
	if lastActive.IsZero() {
		lastActive = start
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = lastActive
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_sessions (session_id, user_id, title, created_at, last_active)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				title = COALESCE(NULLIF(excluded.title, ''), chat_sessions.title),
				last_active = excluded.last_active
		`, session.SessionID, session.UserID, nullString(session.Title), createdAt.UnixMilli(), lastActive.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert chat session: %w", err)
		}

		if len(messages) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chat_messages (session_id, user_id, role, content, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare chat message insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range messages {
			ts := m.CreatedAt
			if ts.IsZero() {
				ts = lastActive
			}
			if _, err := stmt.ExecContext(ctx, session.SessionID, session.UserID, m.Role, m.Content,
				nullString(m.Metadata), ts.UnixMilli()); err != nil {
				return fmt.Errorf("insert %s message: %w", m.Role, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	warnIfSlow(ctx, "SaveTurn", start, "session_id", session.SessionID)
	return nil
}

// GetChatSession returns a session's metadata, or nil, nil if it does not exist.
func (db *DB) GetChatSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	var (
		s                     ChatSession
		title                 sql.NullString
		createdAt, lastActive int64
	)
	err := db.reader.QueryRowContext(ctx, `
		SELECT session_id, user_id, title, created_at, last_active
		FROM chat_sessions WHERE session_id = ?`, sessionID).
		Scan(&s.SessionID, &s.UserID, &title, &createdAt, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query chat session: %w", err)
	}

	s.Title = title.String
	s.CreatedAt = time.UnixMilli(createdAt)
	s.LastActive = time.UnixMilli(lastActive)
	return &s, nil
}

// GetChatMessages returns a session's messages in insertion order.
func (db *DB) GetChatMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, session_id, user_id, role, content, metadata, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []ChatMessage
	for rows.Next() {
		var (
			m         ChatMessage
			metadata  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Metadata = metadata.String
		m.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListChatSessions returns userID's sessions, most recently active first.
func (db *DB) ListChatSessions(ctx context.Context, userID string) ([]SessionSummary, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT s.session_id, s.user_id, s.title, s.created_at, s.last_active,
			(SELECT m.content FROM chat_messages m
				WHERE m.session_id = s.session_id AND m.role = 'user' ORDER BY m.id LIMIT 1),
			(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.session_id)
		FROM chat_sessions s
		WHERE s.user_id = ?
		ORDER BY s.last_active DESC, s.session_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []SessionSummary
	for rows.Next() {
		var (
			s                     SessionSummary
			title, first          sql.NullString
			createdAt, lastActive int64
		)
		if err := rows.Scan(&s.SessionID, &s.UserID, &title, &createdAt, &lastActive, &first, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		s.Title = title.String
		s.FirstMessage = first.String
		s.CreatedAt = time.UnixMilli(createdAt)
		s.LastActive = time.UnixMilli(lastActive)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
