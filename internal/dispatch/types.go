package dispatch

import (
	"context"
	"time"
)

// TaskType represents the kind of background work
type TaskType string

const (
	TaskTranslate TaskType = "translate"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is a snapshot of one unit of background work
type Task struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	Label       string     `json:"label,omitempty"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskFunc does the work. It should return promptly once ctx is cancelled.
type TaskFunc func(ctx context.Context) error
