// Package task tracks asynchronous search requests from submission to a
// terminal state and runs them on a bounded worker pool.
package task

import (
	"errors"
	"time"

	"github.com/hyperifyio/serpgate/internal/model"
)

// Status is a task's lifecycle state. It only moves forward.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrQueueFull         = errors.New("task queue full")
)

// transitions lists the allowed next states. A pending task may fail
// without being claimed when the dispatcher shuts down.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is a snapshot of one request's progress. Result is set iff the task
// completed and Error iff it failed.
type Task struct {
	ID        string        `json:"task_id"`
	Status    Status        `json:"status"`
	Result    *model.Result `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	Request     model.SearchRequest `json:"-"`
	Fingerprint string              `json:"-"`
}

func (t *Task) clone() Task {
	c := *t
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	return c
}
