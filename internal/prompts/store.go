// Package prompts loads operator-managed instruction templates and
// system variables from the database and composes them into system
// prompts.
package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store reads the prompts and system tables. A nil database handle
// degrades every lookup to a miss so conversation flows keep working on
// built-in templates.
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

// Lookup resolves an instruction template by topic. The prompt column
// wins; an empty prompt falls back to the value column.
func (s *Store) Lookup(ctx context.Context, topic string) (string, bool, error) {
	if s.db == nil {
		return "", false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var prompt, value sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT prompt, value FROM myaso.prompts WHERE topic = $1 LIMIT 1", topic).
		Scan(&prompt, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup prompt %q: %w", topic, err)
	}

	if prompt.Valid && prompt.String != "" {
		return prompt.String, true, nil
	}
	if value.Valid && value.String != "" {
		return value.String, true, nil
	}
	return "", false, nil
}

// SystemValue reads one system variable by topic.
func (s *Store) SystemValue(ctx context.Context, topic string) (string, bool, error) {
	if s.db == nil {
		return "", false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM myaso.system WHERE topic = $1 LIMIT 1", topic).
		Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup system value %q: %w", topic, err)
	}
	if !value.Valid || value.String == "" {
		return "", false, nil
	}
	return value.String, true, nil
}

// SystemValues loads the whole system table keyed by topic. Pricing
// reads markup settings from this map on every render.
func (s *Store) SystemValues(ctx context.Context) (map[string]string, error) {
	values := map[string]string{}
	if s.db == nil {
		return values, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT topic, value FROM myaso.system")
	if err != nil {
		return values, fmt.Errorf("load system values: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var topic, value sql.NullString
		if err := rows.Scan(&topic, &value); err != nil {
			return values, fmt.Errorf("scan system value: %w", err)
		}
		if topic.Valid {
			values[topic.String] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return values, fmt.Errorf("iterate system values: %w", err)
	}
	return values, nil
}
