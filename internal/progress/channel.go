// Package progress implements the per-session progress event stream: a
// multi-subscriber fan-out with bounded replay buffers, idle heartbeats,
// and terminal close semantics.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/kondate/pkg/models"
)

const (
	// DefaultBufferSize caps the per-session replay queue; beyond it the
	// oldest events are dropped.
	DefaultBufferSize = 64

	// DefaultHeartbeatInterval is how long a stream may stay silent before
	// a heartbeat is emitted.
	DefaultHeartbeatInterval = 30 * time.Second
)

// Hub fans events out to the subscribers of each session. Publishing never
// blocks the caller.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*sessionStream

	bufferSize int
	heartbeat  time.Duration
	logger     *slog.Logger
}

type sessionStream struct {
	buffer      []models.ProgressEvent
	subscribers map[*subscriber]bool
	lastPublish time.Time
	closed      bool
	heartbeats  int
}

type subscriber struct {
	ch     chan models.ProgressEvent
	cancel context.CancelFunc
}

// Option configures the hub.
type Option func(*Hub)

// WithBufferSize overrides the replay buffer cap.
func WithBufferSize(n int) Option {
	return func(h *Hub) { h.bufferSize = n }
}

// WithHeartbeatInterval overrides the idle heartbeat interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) { h.heartbeat = d }
}

// NewHub creates a hub and starts its heartbeat ticker.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		sessions:   make(map[string]*sessionStream),
		bufferSize: DefaultBufferSize,
		heartbeat:  DefaultHeartbeatInterval,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.heartbeatLoop()
	return h
}

// Publish delivers an event to every subscriber of the session, queueing it
// for late subscribers when none is attached. Terminal events are followed
// by a close event and end the stream.
func (h *Hub) Publish(sessionID string, event models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stream := h.stream(sessionID)
	if stream.closed {
		// A new graph on the same session reopens the stream.
		stream.closed = false
		stream.buffer = nil
	}
	stream.lastPublish = time.Now()

	h.deliver(stream, event)
	if event.Kind.Terminal() {
		closeEvent := models.ProgressEvent{Kind: models.EventClose, Timestamp: time.Now()}
		h.deliver(stream, closeEvent)
		stream.closed = true
		for sub := range stream.subscribers {
			close(sub.ch)
		}
		stream.subscribers = make(map[*subscriber]bool)
	}
}

// deliver sends to attached subscribers or queues when nobody listens.
// Caller holds the lock.
func (h *Hub) deliver(stream *sessionStream, event models.ProgressEvent) {
	if len(stream.subscribers) == 0 {
		stream.buffer = append(stream.buffer, event)
		if len(stream.buffer) > h.bufferSize {
			stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
		}
		return
	}
	for sub := range stream.subscribers {
		select {
		case sub.ch <- event:
		default:
			// Subscriber queue full: drop its oldest event to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// Subscribe attaches to the session's stream. Queued events are replayed
// first. The channel closes after a terminal event's close, or when ctx is
// cancelled. Cancelling a subscription never affects the publisher.
func (h *Hub) Subscribe(ctx context.Context, sessionID string) <-chan models.ProgressEvent {
	h.mu.Lock()
	stream := h.stream(sessionID)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		ch:     make(chan models.ProgressEvent, h.bufferSize),
		cancel: cancel,
	}

	replay := stream.buffer
	stream.buffer = nil
	for _, event := range replay {
		sub.ch <- event
	}

	if stream.closed {
		close(sub.ch)
		h.mu.Unlock()
		cancel()
		return sub.ch
	}

	stream.subscribers[sub] = true
	h.mu.Unlock()

	go func() {
		<-subCtx.Done()
		h.mu.Lock()
		if _, ok := stream.subscribers[sub]; ok {
			delete(stream.subscribers, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
	}()

	return sub.ch
}

// CloseSession ends the session's stream with a terminal error event.
// Used when a session is evicted while a subscriber is attached.
func (h *Hub) CloseSession(sessionID, reason string) {
	h.Publish(sessionID, models.NewError(reason))
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
}

// Drop discards all stream state for a session without notifying anyone.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stream, ok := h.sessions[sessionID]; ok {
		for sub := range stream.subscribers {
			close(sub.ch)
		}
		delete(h.sessions, sessionID)
	}
}

func (h *Hub) stream(sessionID string) *sessionStream {
	stream, ok := h.sessions[sessionID]
	if !ok {
		stream = &sessionStream{
			subscribers: make(map[*subscriber]bool),
			lastPublish: time.Now(),
		}
		h.sessions[sessionID] = stream
	}
	return stream
}

// heartbeatLoop emits a heartbeat on streams with subscribers that have been
// silent for the configured interval.
func (h *Hub) heartbeatLoop() {
	interval := h.heartbeat / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.Lock()
		now := time.Now()
		for _, stream := range h.sessions {
			if stream.closed || len(stream.subscribers) == 0 {
				continue
			}
			if now.Sub(stream.lastPublish) < h.heartbeat {
				continue
			}
			stream.heartbeats++
			stream.lastPublish = now
			h.deliver(stream, models.NewHeartbeat(stream.heartbeats))
		}
		h.mu.Unlock()
	}
}
