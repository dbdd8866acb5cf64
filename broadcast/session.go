package broadcast

import (
	"sync"

	"schedule-board/domain"
)

// SessionState is the server side view of a connection's handshake.
type SessionState int

const (
	// StateAwaitingSnapshot buffers incremental events until the snapshot is queued.
	StateAwaitingSnapshot SessionState = iota
	StateSynced
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingSnapshot:
		return "awaiting-snapshot"
	case StateSynced:
		return "synced"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one connected replica. Its queue always starts with exactly one
// snapshot, followed only by incremental events newer than that snapshot.
type Session struct {
	ID string

	mu          sync.Mutex
	state       SessionState
	snapshotRev uint64
	pending     []domain.ChangeEvent
	maxPending  int
	out         chan domain.ChangeEvent
	done        chan struct{}
}

func newSession(id string, buffer int) *Session {
	if buffer < 1 {
		buffer = 1
	}
	return &Session{
		ID:         id,
		state:      StateAwaitingSnapshot,
		maxPending: buffer,
		out:        make(chan domain.ChangeEvent, buffer+1),
		done:       make(chan struct{}),
	}
}

// Events yields the events to write to the client.
func (s *Session) Events() <-chan domain.ChangeEvent { return s.out }

// Done is closed once the session has been dropped.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current handshake state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// offer queues an incremental event. It returns false when the session fell
// behind and has to be dropped.
func (s *Session) offer(ev domain.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return true
	case StateAwaitingSnapshot:
		if len(s.pending) >= s.maxPending {
			s.closeLocked()
			return false
		}
		s.pending = append(s.pending, ev)
		return true
	}
	if ev.Rev != 0 && ev.Rev <= s.snapshotRev {
		return true
	}
	return s.sendLocked(ev)
}

// deliverSnapshot queues snap, then every buffered event newer than it.
func (s *Session) deliverSnapshot(snap domain.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingSnapshot {
		return s.state != StateClosed
	}
	if !s.sendLocked(snap) {
		return false
	}
	s.snapshotRev = snap.Rev
	s.state = StateSynced
	pending := s.pending
	s.pending = nil
	for _, ev := range pending {
		if ev.Rev != 0 && ev.Rev <= s.snapshotRev {
			continue
		}
		if !s.sendLocked(ev) {
			return false
		}
	}
	return true
}

func (s *Session) sendLocked(ev domain.ChangeEvent) bool {
	select {
	case s.out <- ev:
		return true
	default:
		s.closeLocked()
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.pending = nil
	close(s.done)
}
