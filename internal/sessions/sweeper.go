package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Notifier is told about evicted sessions so live subscribers get a terminal
// event instead of a silent hangup.
type Notifier interface {
	CloseSession(sessionID, reason string)
}

// EvictionReason is the terminal message streamed to subscribers of an
// evicted session.
const EvictionReason = "Session expired due to inactivity. Please start again."

// Sweeper evicts idle sessions on a cron schedule.
type Sweeper struct {
	store    Store
	notifier Notifier
	ttl      time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweeper schedules TTL eviction sweeps. Schedule uses cron syntax,
// including the "@every 5m" form.
func NewSweeper(store Store, notifier Notifier, ttl time.Duration, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		store:    store,
		notifier: notifier,
		ttl:      ttl,
		cron:     cron.New(),
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running sweeps on the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep evicts every session idle longer than the TTL. Exported so a
// shutdown path can run one final sweep.
func (s *Sweeper) Sweep() {
	cutoff := time.Now().Add(-s.ttl)
	evicted, err := s.store.EvictIdle(context.Background(), cutoff)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	for _, id := range evicted {
		if s.notifier != nil {
			s.notifier.CloseSession(id, EvictionReason)
		}
	}
	if len(evicted) > 0 {
		s.logger.Info("evicted idle sessions", "count", len(evicted))
	}
}
