// Package memory persists the short per-phone conversation history the
// assistant replays into each model call.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Roles stored in the history table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// defaultWindow bounds Recent when the caller passes no limit.
const defaultWindow = 10

// Message is one stored conversation turn.
type Message struct {
	Role    string
	Content string
}

// Store reads and writes the conversation history table keyed by client
// phone. A nil database handle turns writes into no-ops and reads into
// empty history so the bot keeps answering without persistence.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

func NewStore(db *sql.DB, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &Store{db: db, timeout: queryTimeout}
}

// Append stores the messages for the phone in the given order as one
// multi-row insert.
func (s *Store) Append(ctx context.Context, clientPhone string, messages ...Message) error {
	if s.db == nil || len(messages) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var query strings.Builder
	query.WriteString("INSERT INTO myaso.conversation_history (client_phone, role, message) VALUES ")
	args := make([]any, 0, len(messages)*3)
	for i, message := range messages {
		if i > 0 {
			query.WriteString(", ")
		}
		fmt.Fprintf(&query, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, clientPhone, normalizeRole(message.Role), message.Content)
	}

	if _, err := s.db.ExecContext(ctx, query.String(), args...); err != nil {
		return fmt.Errorf("append conversation history: %w", err)
	}
	return nil
}

// Recent returns up to limit messages in chronological order, keeping
// the newest turns when the stored history is longer than the window.
func (s *Store) Recent(ctx context.Context, clientPhone string, limit int) ([]Message, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultWindow
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, message FROM myaso.conversation_history WHERE client_phone = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		clientPhone, limit)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var newestFirst []Message
	for rows.Next() {
		var role, content sql.NullString
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan conversation history: %w", err)
		}
		newestFirst = append(newestFirst, Message{
			Role:    normalizeRole(role.String),
			Content: content.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	messages := make([]Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		messages = append(messages, newestFirst[i])
	}
	return messages, nil
}

// Count reports how many messages the phone has stored.
func (s *Store) Count(ctx context.Context, clientPhone string) (int, error) {
	if s.db == nil {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM myaso.conversation_history WHERE client_phone = $1", clientPhone).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count conversation history: %w", err)
	}
	return count, nil
}

// Clear deletes the whole history for the phone.
func (s *Store) Clear(ctx context.Context, clientPhone string) error {
	if s.db == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM myaso.conversation_history WHERE client_phone = $1", clientPhone); err != nil {
		return fmt.Errorf("clear conversation history: %w", err)
	}
	return nil
}

// normalizeRole folds stored and caller-supplied roles onto the known
// set, treating anything unrecognized as a user turn.
func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAssistant:
		return RoleAssistant
	case RoleSystem:
		return RoleSystem
	case RoleTool:
		return RoleTool
	default:
		return RoleUser
	}
}
