package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/kondate/pkg/models"
)

// SQLiteStore persists sessions in a SQLite database, surviving restarts.
// The session state rides as a JSON blob; user and access-time columns exist
// for lookup and eviction queries.
type SQLiteStore struct {
	db      *sql.DB
	gauge   Gauge
	nowFunc func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
// An empty path opens an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// Serialized writes keep read-modify-write updates atomic per session.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, nowFunc: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

var _ Store = (*SQLiteStore)(nil)

// SetGauge installs the live-session gauge. Call before serving.
func (s *SQLiteStore) SetGauge(g Gauge) {
	s.gauge = g
}

// report pushes the current row count. Count failures are ignored; the gauge
// is advisory.
func (s *SQLiteStore) report(ctx context.Context) {
	if s.gauge == nil {
		return
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return
	}
	s.gauge.SetActiveSessions(n)
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_accessed DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_accessed ON sessions(last_accessed)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		session = models.NewSession(sessionID, userID, s.nowFunc())
		if err := s.save(ctx, session, true); err != nil {
			return nil, err
		}
		s.report(ctx)
		return session, nil
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrOwnership
	}
	session.LastAccessed = s.nowFunc()
	if err := s.touch(ctx, sessionID, session.LastAccessed); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.LastAccessed = s.nowFunc()
	if err := s.touch(ctx, sessionID, session.LastAccessed); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) Update(ctx context.Context, sessionID string, mutate func(*models.Session) error) error {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := mutate(session); err != nil {
		return err
	}
	session.LastAccessed = s.nowFunc()
	return s.save(ctx, session, false)
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.report(ctx)
	return nil
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.collectIDs(ctx, "SELECT id FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return nil, fmt.Errorf("delete user sessions: %w", err)
	}
	s.report(ctx)
	return ids, nil
}

func (s *SQLiteStore) EvictIdle(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.collectIDs(ctx, "SELECT id FROM sessions WHERE last_accessed < ?", cutoff)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE last_accessed < ?", cutoff); err != nil {
		return nil, fmt.Errorf("evict sessions: %w", err)
	}
	s.report(ctx)
	return ids, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) load(ctx context.Context, sessionID string) (*models.Session, error) {
	var state string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM sessions WHERE id = ?", sessionID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal([]byte(state), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *SQLiteStore) save(ctx context.Context, session *models.Session, create bool) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if create {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO sessions (id, user_id, state, created_at, last_accessed) VALUES (?, ?, ?, ?, ?)",
			session.ID, session.UserID, string(state), session.CreatedAt, session.LastAccessed,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			"UPDATE sessions SET state = ?, last_accessed = ? WHERE id = ?",
			string(state), session.LastAccessed, session.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (s *SQLiteStore) touch(ctx context.Context, sessionID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE sessions SET last_accessed = ? WHERE id = ?", at, sessionID); err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) collectIDs(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
