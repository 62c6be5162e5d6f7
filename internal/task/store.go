package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperifyio/serpgate/internal/model"
)

// Store keeps tasks in memory. Every accessor returns a copy, so callers can
// never observe a half-applied transition.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task), now: time.Now}
}

// Create adds a pending task for req.
func (s *Store) Create(req model.SearchRequest, fingerprint string) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t := &Task{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Request:     req,
		Fingerprint: fingerprint,
	}
	s.tasks[t.ID] = t
	return t.clone()
}

// CreateCompleted adds a task that is already completed with res, as for a
// cache hit.
func (s *Store) CreateCompleted(req model.SearchRequest, fingerprint string, res model.Result) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t := &Task{
		ID:          uuid.NewString(),
		Status:      StatusCompleted,
		Result:      &res,
		CreatedAt:   now,
		UpdatedAt:   now,
		Request:     req,
		Fingerprint: fingerprint,
	}
	s.tasks[t.ID] = t
	return t.clone()
}

// Get returns a snapshot of the task.
func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t.clone(), nil
}

// Claim moves a pending task to processing. Only one caller can succeed.
func (s *Store) Claim(id string) (Task, error) {
	return s.transition(id, StatusProcessing, func(*Task) {})
}

// Complete records res on a processing task.
func (s *Store) Complete(id string, res model.Result) (Task, error) {
	return s.transition(id, StatusCompleted, func(t *Task) { t.Result = &res })
}

// Fail records msg on a pending or processing task.
func (s *Store) Fail(id, msg string) (Task, error) {
	if msg == "" {
		msg = "unknown error"
	}
	return s.transition(id, StatusFailed, func(t *Task) { t.Error = msg })
}

func (s *Store) transition(id string, to Status, apply func(*Task)) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	if !canTransition(t.Status, to) {
		return t.clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	apply(t)
	t.Status = to
	t.UpdatedAt = s.now()
	return t.clone(), nil
}

// Delete removes a task regardless of state.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// Sweep drops terminal tasks last updated more than retention ago and
// returns how many were removed.
func (s *Store) Sweep(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-retention)
	n := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
