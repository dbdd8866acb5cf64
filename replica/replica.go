// Package replica keeps a client side copy of the board in step with the
// event channel.
package replica

import (
	"sync"

	"schedule-board/domain"
)

// State is the replica's connection handshake state.
type State int

const (
	Disconnected State = iota
	AwaitingSnapshot
	Synced
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingSnapshot:
		return "awaiting-snapshot"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// Replica is written only by applying change events. Between a reconnect and
// the next snapshot it keeps serving the stale mapping, which the snapshot then
// replaces wholesale.
type Replica struct {
	mu       sync.RWMutex
	state    State
	tasks    domain.Tasks
	rev      uint64
	onChange func(domain.Tasks)
}

// New creates a disconnected, empty replica. onChange, if set, is called with
// a copy of the mapping after every applied event.
func New(onChange func(domain.Tasks)) *Replica {
	return &Replica{tasks: domain.Tasks{}, onChange: onChange}
}

// Connect marks the start of a new connection.
func (r *Replica) Connect() {
	r.mu.Lock()
	r.state = AwaitingSnapshot
	r.mu.Unlock()
}

// Disconnect marks the connection as lost. The mapping is kept.
func (r *Replica) Disconnect() {
	r.mu.Lock()
	r.state = Disconnected
	r.mu.Unlock()
}

// Apply applies ev and reports whether the mapping changed state. Incremental
// events are dropped unless the replica is synced and, when the event carries
// a revision, newer than the last snapshot or event applied.
func (r *Replica) Apply(ev domain.ChangeEvent) bool {
	r.mu.Lock()
	applied := r.applyLocked(ev)
	var view domain.Tasks
	if applied && r.onChange != nil {
		view = r.tasks.Clone()
	}
	r.mu.Unlock()
	if view != nil {
		r.onChange(view)
	}
	return applied
}

func (r *Replica) applyLocked(ev domain.ChangeEvent) bool {
	switch ev.Type {
	case domain.EventSnapshot:
		if r.state != AwaitingSnapshot {
			return false
		}
		r.tasks = ev.Tasks.Clone()
		r.rev = ev.Rev
		r.state = Synced
		return true
	case domain.EventTaskAdded, domain.EventTaskDeleted:
		if r.state != Synced {
			return false
		}
		if ev.Rev != 0 && ev.Rev <= r.rev {
			return false
		}
		if ev.Type == domain.EventTaskAdded {
			t := ev.Task.Clone()
			if t.ID == "" {
				t.ID = ev.TaskID
			}
			r.tasks[ev.TaskID] = t
		} else {
			delete(r.tasks, ev.TaskID)
		}
		if ev.Rev != 0 {
			r.rev = ev.Rev
		}
		return true
	default:
		return false
	}
}

// State returns the handshake state.
func (r *Replica) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Tasks returns a copy of the current mapping.
func (r *Replica) Tasks() domain.Tasks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks.Clone()
}

// Rev returns the revision of the last applied event.
func (r *Replica) Rev() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rev
}
