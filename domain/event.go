package domain

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// EventType names a message on the board's event channel.
type EventType string

const (
	// EventSnapshot carries the full mapping and is sent once per connection.
	EventSnapshot    EventType = "tasks"
	EventTaskAdded   EventType = "task_added"
	EventTaskDeleted EventType = "task_deleted"
)

// ChangeEvent is a committed mutation or a full snapshot. Rev is the store
// revision the event reflects; a snapshot at Rev already contains every
// incremental event with a revision less than or equal to it.
type ChangeEvent struct {
	Type   EventType
	Rev    uint64
	TaskID string
	Task   Task
	Tasks  Tasks
}

// Incremental reports whether the event is an add or a delete.
func (e ChangeEvent) Incremental() bool {
	return e.Type == EventTaskAdded || e.Type == EventTaskDeleted
}

// SnapshotEvent builds a snapshot of tasks at rev. The mapping is copied.
func SnapshotEvent(rev uint64, tasks Tasks) ChangeEvent {
	return ChangeEvent{Type: EventSnapshot, Rev: rev, Tasks: tasks.Clone()}
}

// AddedEvent builds a task_added event.
func AddedEvent(rev uint64, task Task) ChangeEvent {
	return ChangeEvent{Type: EventTaskAdded, Rev: rev, TaskID: task.ID, Task: task.Clone()}
}

// DeletedEvent builds a task_deleted event.
func DeletedEvent(rev uint64, id string) ChangeEvent {
	return ChangeEvent{Type: EventTaskDeleted, Rev: rev, TaskID: id}
}

// Frame is the JSON envelope written to websocket and SSE clients.
type Frame struct {
	Event EventType       `json:"event"`
	Rev   uint64          `json:"rev"`
	Data  json.RawMessage `json:"data"`
}

// TaskAddedData is the payload of a task_added frame.
type TaskAddedData struct {
	TaskID string `json:"task_id"`
	Task   Task   `json:"task"`
}

// TaskDeletedData is the payload of a task_deleted frame.
type TaskDeletedData struct {
	TaskID string `json:"task_id"`
}

// EncodeFrame serializes ev into its wire envelope.
func EncodeFrame(ev ChangeEvent) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch ev.Type {
	case EventSnapshot:
		tasks := ev.Tasks
		if tasks == nil {
			tasks = Tasks{}
		}
		data, err = sonic.Marshal(tasks)
	case EventTaskAdded:
		data, err = sonic.Marshal(TaskAddedData{TaskID: ev.TaskID, Task: ev.Task})
	case EventTaskDeleted:
		data, err = sonic.Marshal(TaskDeletedData{TaskID: ev.TaskID})
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(Frame{Event: ev.Type, Rev: ev.Rev, Data: data})
}

// DecodeFrame parses a wire envelope back into a ChangeEvent.
func DecodeFrame(raw []byte) (ChangeEvent, error) {
	var f Frame
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode frame: %w", err)
	}
	ev := ChangeEvent{Type: f.Event, Rev: f.Rev}
	switch f.Event {
	case EventSnapshot:
		tasks := Tasks{}
		if len(f.Data) > 0 && string(f.Data) != "null" {
			if err := sonic.Unmarshal(f.Data, &tasks); err != nil {
				return ChangeEvent{}, fmt.Errorf("decode %s: %w", f.Event, err)
			}
		}
		ev.Tasks = tasks
	case EventTaskAdded:
		var d TaskAddedData
		if err := sonic.Unmarshal(f.Data, &d); err != nil {
			return ChangeEvent{}, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		ev.TaskID = d.TaskID
		ev.Task = d.Task
	case EventTaskDeleted:
		var d TaskDeletedData
		if err := sonic.Unmarshal(f.Data, &d); err != nil {
			return ChangeEvent{}, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		ev.TaskID = d.TaskID
	default:
		return ChangeEvent{}, fmt.Errorf("unknown event type %q", f.Event)
	}
	return ev, nil
}
