// Package memories stores per-user facts the assistant accumulates
// across conversations, queried and rewritten through a cheap model.
package memories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed persistence layer: one condensed memory
// summary per user, plus the cleaned display name per platform user id.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the memories database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_memories (
		user_name TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_names (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Summary returns the stored memory summary for a user. A user with
// no memories yet returns an empty string.
func (s *Store) Summary(ctx context.Context, userName string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM user_memories WHERE user_name = ?`, userName).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query memories for %s: %w", userName, err)
	}
	return summary, nil
}

// SetSummary replaces a user's memory summary.
func (s *Store) SetSummary(ctx context.Context, userName, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memories (user_name, summary, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_name) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		userName, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store memories for %s: %w", userName, err)
	}
	return nil
}

// Name returns the cleaned display name stored for a platform user id,
// or "" when none is stored yet.
func (s *Store) Name(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM user_names WHERE user_id = ?`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query name for %s: %w", userID, err)
	}
	return name, nil
}

// SetName stores the cleaned display name for a platform user id.
func (s *Store) SetName(ctx context.Context, userID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_names (user_id, name) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name = excluded.name`,
		userID, name)
	if err != nil {
		return fmt.Errorf("store name for %s: %w", userID, err)
	}
	return nil
}

// AllNames returns every stored display name, for tag reconciliation.
func (s *Store) AllNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM user_names ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
