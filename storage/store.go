package storage

import (
	"errors"
	"sync"
	"time"

	"schedule-board/domain"
)

// ErrEmptyID is returned when a task is written without an identifier.
var ErrEmptyID = errors.New("task id is required")

// ErrNotConfigured is returned when a backend is missing its connection settings.
var ErrNotConfigured = errors.New("storage backend not configured")

// TaskStore is the authoritative id to task mapping. All methods are safe for
// concurrent use and atomic with respect to each other.
type TaskStore struct {
	mu    sync.RWMutex
	tasks domain.Tasks
	rev   uint64
	now   func() time.Time
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: domain.Tasks{}, now: time.Now}
}

// nextRev returns a revision greater than any handed out before. Revisions are
// derived from the wall clock so they keep increasing across restarts.
func (s *TaskStore) nextRev() uint64 {
	now := uint64(s.now().UnixNano())
	if now <= s.rev {
		now = s.rev + 1
	}
	s.rev = now
	return now
}

// Put stores task under id, replacing any previous record.
func (s *TaskStore) Put(id string, task domain.Task) (uint64, error) {
	if id == "" {
		return 0, ErrEmptyID
	}
	task = task.Clone()
	task.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = task
	return s.nextRev(), nil
}

// Delete removes id and reports whether it was present. The revision advances
// even when nothing was removed.
func (s *TaskStore) Delete(id string) (bool, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.tasks[id]
	delete(s.tasks, id)
	return existed, s.nextRev()
}

// Snapshot returns a copy of the mapping together with the revision it reflects.
func (s *TaskStore) Snapshot() (domain.Tasks, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks.Clone(), s.rev
}

// Get returns the task stored under id.
func (s *TaskStore) Get(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return t.Clone(), true
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Restore replaces the whole mapping, typically with the contents of a
// persistence backend at startup.
func (s *TaskStore) Restore(tasks domain.Tasks) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = tasks.Clone()
	for id, t := range s.tasks {
		if t.ID == "" {
			t.ID = id
			s.tasks[id] = t
		}
	}
	return s.nextRev()
}
