// Package history stores completed menus so later proposals can avoid
// repeats and users can review what they cooked.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Record is one saved dish.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	URL       string    `json:"url,omitempty"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists menu history in SQLite.
type Store struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewStore opens (or creates) the history database at path. An empty path
// opens an in-memory database.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, nowFunc: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS recipe_history (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			url TEXT,
			category TEXT,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_history_user ON recipe_history(user_id, created_at)"); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Save assigns an id and timestamp and inserts the record.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.nowFunc()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO recipe_history (id, user_id, title, source, url, category, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.UserID, rec.Title, rec.Source, rec.URL, rec.Category, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	return nil
}

// List returns the user's records, newest first. A non-positive limit
// defaults to 50.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, title, source, url, category, created_at FROM recipe_history WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var url, category sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Source, &url, &category, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.URL = url.String
		rec.Category = category.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
