package api

import "schedule-board/domain"

const postTaskMaxSize = 64 * 1024 // 64 KiB

// POST /tasks response body
type addTaskResponse struct {
	TaskID string      `json:"task_id"`
	Task   domain.Task `json:"task"`
}

// DELETE /tasks/:id response body
type deleteTaskResponse struct {
	TaskID  string `json:"task_id"`
	Existed bool   `json:"existed"`
}

// GET /tasks response body
type tasksResponse struct {
	Rev   uint64       `json:"rev"`
	Tasks domain.Tasks `json:"tasks"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}
