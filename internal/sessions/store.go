// Package sessions persists per-conversation state. Stores hand out deep
// copies only; callers mutate through Update so concurrent turns on the same
// session serialize on the store.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/kondate/pkg/models"
)

var (
	// ErrNotFound means no session exists under the given id.
	ErrNotFound = errors.New("session not found")

	// ErrOwnership means the session id exists but belongs to another user.
	ErrOwnership = errors.New("session belongs to another user")
)

// Gauge receives the store's live session count after every change.
type Gauge interface {
	SetActiveSessions(n int)
}

// Store is the interface for session persistence.
type Store interface {
	// GetOrCreate returns the user's session, creating it at the initial
	// stage when absent. Accessing another user's session id fails with
	// ErrOwnership.
	GetOrCreate(ctx context.Context, sessionID, userID string) (*models.Session, error)

	// Get returns the session without creating it.
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// Update applies the mutator to the stored session and commits the
	// result. The mutator runs with the session locked; concurrent updates
	// to one session serialize.
	Update(ctx context.Context, sessionID string, mutate func(*models.Session) error) error

	// Delete removes the session.
	Delete(ctx context.Context, sessionID string) error

	// DeleteUser removes every session of a user and returns the ids removed.
	DeleteUser(ctx context.Context, userID string) ([]string, error)

	// EvictIdle removes sessions not accessed since the cutoff and returns
	// their ids.
	EvictIdle(ctx context.Context, cutoff time.Time) ([]string, error)

	// Close releases backend resources.
	Close() error
}
