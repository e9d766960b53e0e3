package tasks

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("task not found")

// Record is the persisted outcome of a task.
type Record struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Progress is one notification line emitted by a running task.
type Progress struct {
	Ts   time.Time `json:"ts"`
	Text string    `json:"text"`
}

// ListFilter defines criteria for filtering task lists.
type ListFilter struct {
	Status TaskStatus `json:"status,omitempty"`
	Type   string     `json:"type,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

// Store defines the persistence interface for task records.
type Store interface {
	Save(r *Record) error
	Get(id string) (*Record, error)
	List(filter ListFilter) ([]*Record, error)
	AppendProgress(taskID string, p Progress) error
	LoadProgress(taskID string) ([]Progress, error)
}
