// Package board implements the command gateway: the only writer of the task
// store and the origin of every change event.
package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"schedule-board/domain"
	"schedule-board/storage"
)

// Emitter receives every committed change event, in commit order.
// Implementations must not block for long; they run under the gateway lock.
type Emitter interface {
	Emit(ev domain.ChangeEvent)
}

// AddResult acknowledges an add command.
type AddResult struct {
	TaskID string
	Task   domain.Task
	Rev    uint64
}

// DeleteResult acknowledges a delete command.
type DeleteResult struct {
	TaskID  string
	Existed bool
	Rev     uint64
}

// Service validates commands, applies them to the store and emits exactly one
// change event per command before returning.
type Service struct {
	mu       sync.Mutex
	store    *storage.TaskStore
	emitters []Emitter
	logger   *log.Logger
}

// NewService creates a gateway over store.
func NewService(store *storage.TaskStore, logger *log.Logger, emitters ...Emitter) *Service {
	if store == nil {
		panic("board.NewService: store is required")
	}
	if logger == nil {
		panic("board.NewService: logger is required")
	}
	return &Service{store: store, logger: logger, emitters: emitters}
}

// Attach adds emitters. It must be called before commands are served.
func (s *Service) Attach(emitters ...Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitters = append(s.emitters, emitters...)
}

func (s *Service) emit(ev domain.ChangeEvent) {
	for _, e := range s.emitters {
		e.Emit(ev)
	}
}

// AddTask stores task under its id, overwriting any previous record.
func (s *Service) AddTask(task domain.Task) (AddResult, error) {
	if task.ID == "" {
		return AddResult{}, &domain.ValidationError{Field: "taskId", Reason: "must not be empty"}
	}
	if task.Dependencies == nil {
		task.Dependencies = domain.Dependencies{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rev, err := s.store.Put(task.ID, task)
	if err != nil {
		return AddResult{}, err
	}
	s.emit(domain.AddedEvent(rev, task))
	s.logger.WithFields(log.Fields{"task_id": task.ID, "rev": rev}).Debug("task added")
	return AddResult{TaskID: task.ID, Task: task.Clone(), Rev: rev}, nil
}

// DeleteTask removes id. A missing id is not an error: the result reports
// Existed false and a task_deleted event is still emitted so replicas that
// missed an earlier add converge.
func (s *Service) DeleteTask(id string) (DeleteResult, error) {
	if id == "" {
		return DeleteResult{}, &domain.ValidationError{Field: "taskId", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existed, rev := s.store.Delete(id)
	s.emit(domain.DeletedEvent(rev, id))
	s.logger.WithFields(log.Fields{"task_id": id, "rev": rev, "existed": existed}).Debug("task deleted")
	return DeleteResult{TaskID: id, Existed: existed, Rev: rev}, nil
}

// Snapshot returns the current mapping as a snapshot event.
func (s *Service) Snapshot(context.Context) (domain.ChangeEvent, error) {
	tasks, rev := s.store.Snapshot()
	return domain.ChangeEvent{Type: domain.EventSnapshot, Rev: rev, Tasks: tasks}, nil
}

// Seed adds tasks through the normal command path so every emitter sees them.
func (s *Service) Seed(tasks []domain.Task) error {
	for _, t := range tasks {
		if _, err := s.AddTask(t); err != nil {
			return err
		}
	}
	return nil
}
