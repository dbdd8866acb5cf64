package api

import (
	"schedule-board/board"
	"schedule-board/domain"
)

// Commands is the write side of the board. It is nil on stream followers.
type Commands interface {
	AddTask(task domain.Task) (board.AddResult, error)
	DeleteTask(id string) (board.DeleteResult, error)
}
