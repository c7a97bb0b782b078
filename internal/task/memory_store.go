package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a thread-safe, in-memory Store. Tasks are kept in a map for
// lookup and a slice preserving submission order. Every method copies tasks
// in and out so callers never share pointers with the store.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	order []uuid.UUID
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[uuid.UUID]*Task)}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	s.tasks[t.ID] = t.Clone()
	s.order = append(s.order, t.ID)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// ListByOwner implements Store.
func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Walk backwards so later submissions win ties in the stable sort
	var owned []*Task
	for i := len(s.order) - 1; i >= 0; i-- {
		if t := s.tasks[s.order[i]]; t.OwnerID == ownerID {
			owned = append(owned, t)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].SubmittedAt.After(owned[j].SubmittedAt)
	})

	total := len(owned)
	if limit > 0 && len(owned) > limit {
		owned = owned[:limit]
	}

	result := make([]*Task, len(owned))
	for i, t := range owned {
		result[i] = t.Clone()
	}
	return result, total, nil
}

// Claim implements Store.
func (s *MemoryStore) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.State != StatePending {
		return nil, ErrStateConflict
	}

	t.State = StateInProgress
	t.Progress = ProgressClaimed
	t.AttemptCount++
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.HeartbeatAt = &now
	return t.Clone(), nil
}

// owned returns the task if it is in progress under attempt. Callers hold s.mu.
func (s *MemoryStore) owned(id uuid.UUID, attempt int) (*Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.State != StateInProgress || t.AttemptCount != attempt {
		return nil, ErrLostOwnership
	}
	return t, nil
}

// UpdateProgress implements Store.
func (s *MemoryStore) UpdateProgress(ctx context.Context, id uuid.UUID, attempt, progress int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.owned(id, attempt)
	if err != nil {
		return err
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	t.HeartbeatAt = &now
	return nil
}

// Heartbeat implements Store.
func (s *MemoryStore) Heartbeat(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.owned(id, attempt)
	if err != nil {
		return err
	}
	t.HeartbeatAt = &now
	return nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(ctx context.Context, id uuid.UUID, attempt int, resultRef string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.owned(id, attempt)
	if err != nil {
		return err
	}
	if t.CancelRequested {
		return ErrLostOwnership
	}
	t.State = StateCompleted
	t.Progress = ProgressCompleted
	t.ResultReference = &resultRef
	t.CompletedAt = &now
	return nil
}

// Fail implements Store.
func (s *MemoryStore) Fail(ctx context.Context, id uuid.UUID, attempt int, summary string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.owned(id, attempt)
	if err != nil {
		return err
	}
	t.State = StateFailed
	t.ErrorSummary = &summary
	t.CompletedAt = &now
	return nil
}

// Requeue implements Store.
func (s *MemoryStore) Requeue(ctx context.Context, id uuid.UUID, attempt int, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.owned(id, attempt)
	if err != nil {
		return err
	}
	t.State = StatePending
	t.Progress = ProgressClaimed
	t.HeartbeatAt = nil
	t.NextAttemptAt = nextAttemptAt
	return nil
}

// MarkCancelled implements Store.
func (s *MemoryStore) MarkCancelled(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.owned(id, attempt)
	if err != nil {
		return err
	}
	t.State = StateCancelled
	t.CompletedAt = &now
	return nil
}

// CancelPending implements Store.
func (s *MemoryStore) CancelPending(ctx context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.State != StatePending {
		return ErrStateConflict
	}
	t.State = StateCancelled
	t.CancelRequested = true
	t.CompletedAt = &now
	return nil
}

// FailPending implements Store.
func (s *MemoryStore) FailPending(ctx context.Context, id uuid.UUID, summary string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.State != StatePending {
		return ErrStateConflict
	}
	t.State = StateFailed
	t.ErrorSummary = &summary
	t.CompletedAt = &now
	return nil
}

// RequestCancel implements Store.
func (s *MemoryStore) RequestCancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.State != StateInProgress {
		return ErrStateConflict
	}
	t.CancelRequested = true
	return nil
}

// ListStale implements Store.
func (s *MemoryStore) ListStale(ctx context.Context, heartbeatBefore time.Time, limit int) ([]*Task, error) {
	return s.filter(limit, func(t *Task) bool {
		return t.State == StateInProgress && (t.HeartbeatAt == nil || t.HeartbeatAt.Before(heartbeatBefore))
	}), nil
}

// ListPending implements Store.
func (s *MemoryStore) ListPending(ctx context.Context, readyBefore time.Time, limit int) ([]*Task, error) {
	return s.filter(limit, func(t *Task) bool {
		return t.State == StatePending && t.NextAttemptAt.Before(readyBefore)
	}), nil
}

// TouchPending implements Store.
func (s *MemoryStore) TouchPending(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.State != StatePending {
		return ErrStateConflict
	}
	t.NextAttemptAt = nextAttemptAt
	return nil
}

func (s *MemoryStore) filter(limit int, keep func(*Task) bool) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*Task
	for _, id := range s.order {
		if t := s.tasks[id]; keep(t) {
			result = append(result, t.Clone())
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result
}
