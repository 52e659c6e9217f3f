package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/kondate/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and
// single-process runs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	gauge    Gauge

	// nowFunc is swappable in tests.
	nowFunc func() time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		nowFunc:  time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// SetGauge installs the live-session gauge. Call before serving.
func (m *MemoryStore) SetGauge(g Gauge) {
	m.gauge = g
}

// report pushes the current count. Callers hold m.mu.
func (m *MemoryStore) report() {
	if m.gauge != nil {
		m.gauge.SetActiveSessions(len(m.sessions))
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		session = models.NewSession(sessionID, userID, m.nowFunc())
		m.sessions[sessionID] = session
		m.report()
		return session.Clone(), nil
	}
	if session.UserID != userID {
		return nil, ErrOwnership
	}
	session.LastAccessed = m.nowFunc()
	return session.Clone(), nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	session.LastAccessed = m.nowFunc()
	return session.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, sessionID string, mutate func(*models.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	// Mutate a clone so a failing mutator leaves the stored state intact.
	clone := session.Clone()
	if err := mutate(clone); err != nil {
		return err
	}
	clone.LastAccessed = m.nowFunc()
	m.sessions[sessionID] = clone
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	m.report()
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, session := range m.sessions {
		if session.UserID == userID {
			removed = append(removed, id)
			delete(m.sessions, id)
		}
	}
	m.report()
	return removed, nil
}

func (m *MemoryStore) EvictIdle(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []string
	for id, session := range m.sessions {
		if session.LastAccessed.Before(cutoff) {
			evicted = append(evicted, id)
			delete(m.sessions, id)
		}
	}
	m.report()
	return evicted, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
