package store

import (
	"context"
	"time"
)

// ScheduleKind is how a task's next fire time is computed.
type ScheduleKind string

const (
	ScheduleCron     ScheduleKind = "cron"
	ScheduleInterval ScheduleKind = "interval"
	ScheduleOnce     ScheduleKind = "once"
)

// ContextMode selects whether a scheduled run continues the tenant's
// conversation or starts fresh.
type ContextMode string

const (
	ContextGroup    ContextMode = "group"
	ContextIsolated ContextMode = "isolated"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskActive TaskStatus = "active"
	TaskPaused TaskStatus = "paused"
)

// Task is a durable scheduled job.
type Task struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenantId"`
	Destination   string       `json:"destination"`
	Prompt        string       `json:"prompt"`
	ScheduleKind  ScheduleKind `json:"scheduleKind"`
	ScheduleValue string       `json:"scheduleValue"`
	ContextMode   ContextMode  `json:"contextMode"`
	NextFire      *time.Time   `json:"nextFire,omitempty"`
	Status        TaskStatus   `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastRun       *time.Time   `json:"lastRun,omitempty"`
	LastResult    *string      `json:"lastResult,omitempty"`
}

// TaskStore is the source of truth for scheduled tasks. Every mutation
// touches only the columns it names so concurrent writers (the drainer
// pausing a task while the scheduler records a run) do not clobber each other.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error) // ErrNotFound
	// ListTasks returns the tasks of one tenant, or all tasks when tenantID is "".
	ListTasks(ctx context.Context, tenantID string) ([]Task, error)
	// DueTasks returns active tasks with NextFire <= now ordered by NextFire, ID.
	DueTasks(ctx context.Context, now time.Time) ([]Task, error)
	SetTaskStatus(ctx context.Context, id string, status TaskStatus) error
	SetNextFire(ctx context.Context, id string, next *time.Time) error
	RecordRun(ctx context.Context, id string, at time.Time, result string) error
	DeleteTask(ctx context.Context, id string) error // deleting a missing row is not an error
}
