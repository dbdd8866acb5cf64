// Package broadcast fans committed change events out to connected replicas.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"schedule-board/domain"
)

// ErrHubClosed is returned by Join after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

// SnapshotSource produces the full current mapping.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.ChangeEvent, error)
}

// Hub is the registry of connected sessions. It is created at server start and
// closed on shutdown.
type Hub struct {
	source SnapshotSource
	buffer int
	logger *log.Logger

	mu       sync.RWMutex
	closed   bool
	sessions map[string]*Session
}

// NewHub creates a hub whose sessions are initialised from source and hold at
// most buffer undelivered events before being dropped.
func NewHub(source SnapshotSource, buffer int, logger *log.Logger) *Hub {
	if source == nil {
		panic("broadcast.NewHub: snapshot source is required")
	}
	if logger == nil {
		panic("broadcast.NewHub: logger is required")
	}
	return &Hub{source: source, buffer: buffer, logger: logger, sessions: make(map[string]*Session)}
}

// Join registers a new session and queues its snapshot. The session is
// registered before the snapshot is taken so nothing committed afterwards can
// be missed; anything already covered by the snapshot is filtered by revision.
func (h *Hub) Join(ctx context.Context) (*Session, error) {
	s := newSession(uuid.NewString(), h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.sessions[s.ID] = s
	h.mu.Unlock()

	snap, err := h.source.Snapshot(ctx)
	if err != nil {
		h.Leave(s)
		return nil, err
	}
	if snap.Tasks == nil {
		snap.Tasks = domain.Tasks{}
	}
	if !s.deliverSnapshot(snap) {
		h.Leave(s)
		return nil, errors.New("session dropped before snapshot")
	}
	h.logger.WithFields(log.Fields{"session": s.ID, "rev": snap.Rev, "tasks": len(snap.Tasks)}).Info("session joined")
	return s, nil
}

// Leave unregisters s and closes it. Calling it twice is harmless.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	s.close()
	if ok {
		h.logger.WithField("session", s.ID).Info("session left")
	}
}

// Emit offers ev to every session. A session that cannot keep up is dropped;
// its client resynchronises on reconnect.
func (h *Hub) Emit(ev domain.ChangeEvent) {
	if !ev.Incremental() {
		return
	}
	var dropped []*Session
	h.mu.RLock()
	for _, s := range h.sessions {
		if !s.offer(ev) {
			dropped = append(dropped, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range dropped {
		h.logger.WithFields(log.Fields{"session": s.ID, "rev": ev.Rev}).Warn("session too slow; dropped")
		h.Leave(s)
	}
}

// Resync drops every session, forcing clients to reconnect and take a fresh
// snapshot. Used when the event feed may have a gap.
func (h *Hub) Resync() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
	if len(sessions) > 0 {
		h.logger.WithField("sessions", len(sessions)).Warn("dropped all sessions for resync")
	}
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close drops every session and rejects further joins.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}
