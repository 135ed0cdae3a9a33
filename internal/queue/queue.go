// Package queue holds the pending and failed write queues shared by the
// mutation path (producer) and the sync engine (consumer).
//
// Every state change is persisted before the call returns, under the same
// lock that guards the in-memory state, so saves are never reordered.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitsync/internal/models"
)

// ErrNotFound is returned when a write id is not in the expected queue
var ErrNotFound = errors.New("write not found in queue")

// Persister is the durable key-value store holding the queue state
type Persister interface {
	Load(ctx context.Context) (models.QueueState, error)
	Save(ctx context.Context, state models.QueueState) error
}

// Option configures a Queue
type Option func(*Queue)

// WithClock overrides the time source used for write timestamps
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is the Pending Write Queue together with the Failed Write Queue
type Queue struct {
	mu        sync.Mutex
	persister Persister
	state     models.QueueState
	now       func() time.Time
}

// New creates an empty queue backed by p. Call Load to restore persisted state.
func New(p Persister, opts ...Option) *Queue {
	q := &Queue{persister: p, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load replaces the in-memory state with the persisted one
func (q *Queue) Load(ctx context.Context) error {
	state, err := q.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queue state: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = state.Clone()
	return nil
}

// Enqueue appends a new pending write with a zero retry count
func (q *Queue) Enqueue(ctx context.Context, op models.Operation, collection models.Collection, payload models.Record) (models.PendingWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	w := models.PendingWrite{
		ID:         uuid.NewString(),
		Operation:  op,
		Collection: collection,
		Payload:    payload,
		Timestamp:  q.now(),
		RetryCount: 0,
	}
	q.state.Pending = append(q.state.Pending, w)
	return w, q.save(ctx)
}

// Pending returns a snapshot of the pending writes in enqueue order
func (q *Queue) Pending() []models.PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingWrite(nil), q.state.Pending...)
}

// Failed returns a snapshot of the failed writes
func (q *Queue) Failed() []models.PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingWrite(nil), q.state.Failed...)
}

// Count is the number of writes not yet committed (pending + failed)
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.state.Pending) + len(q.state.Failed)
}

// Remove drops a pending write after it reached the remote store
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ok bool
	q.state.Pending, _, ok = take(q.state.Pending, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q.save(ctx)
}

// MoveToFailed moves a pending write to the failed queue and increments its retry count.
// It returns the write as stored in the failed queue.
func (q *Queue) MoveToFailed(ctx context.Context, id string) (models.PendingWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rest, w, ok := take(q.state.Pending, id)
	if !ok {
		return models.PendingWrite{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	w.RetryCount++
	q.state.Pending = rest
	q.state.Failed = append(q.state.Failed, w)
	return w, q.save(ctx)
}

// Discard removes a write from both queues permanently
func (q *Queue) Discard(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var inPending, inFailed bool
	q.state.Pending, _, inPending = take(q.state.Pending, id)
	q.state.Failed, _, inFailed = take(q.state.Failed, id)
	if !inPending && !inFailed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q.save(ctx)
}

// RetryFailed moves one failed write back to the pending queue, keeping its retry count
func (q *Queue) RetryFailed(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rest, w, ok := take(q.state.Failed, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.state.Failed = rest
	q.state.Pending = append(q.state.Pending, w)
	return q.save(ctx)
}

// RetryAllFailed moves every failed write back to the pending queue and
// returns how many were moved
func (q *Queue) RetryAllFailed(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.state.Failed)
	if n == 0 {
		return 0, nil
	}
	q.state.Pending = append(q.state.Pending, q.state.Failed...)
	q.state.Failed = nil
	return n, q.save(ctx)
}

// ClearFailed drops every failed write and returns what was dropped
func (q *Queue) ClearFailed(ctx context.Context) ([]models.PendingWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.state.Failed
	q.state.Failed = nil
	return dropped, q.save(ctx)
}

// LastSyncTime returns the time of the last completed sync cycle, if any
func (q *Queue) LastSyncTime() *time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.LastSyncTime == nil {
		return nil
	}
	t := *q.state.LastSyncTime
	return &t
}

// SetLastSyncTime records the time of a completed sync cycle
func (q *Queue) SetLastSyncTime(ctx context.Context, t time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state.LastSyncTime = &t
	return q.save(ctx)
}

// CycleStartedAt returns the start marker of an unfinished sync cycle
func (q *Queue) CycleStartedAt() *time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.CycleStartedAt == nil {
		return nil
	}
	t := *q.state.CycleStartedAt
	return &t
}

// BeginCycle persists the marker of a running sync cycle
func (q *Queue) BeginCycle(ctx context.Context, t time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state.CycleStartedAt = &t
	return q.save(ctx)
}

// EndCycle clears the running-cycle marker
func (q *Queue) EndCycle(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.CycleStartedAt == nil {
		return nil
	}
	q.state.CycleStartedAt = nil
	return q.save(ctx)
}

// save persists the current state. Callers hold q.mu.
func (q *Queue) save(ctx context.Context) error {
	if err := q.persister.Save(ctx, q.state.Clone()); err != nil {
		return fmt.Errorf("failed to persist queue state: %w", err)
	}
	return nil
}

func take(writes []models.PendingWrite, id string) ([]models.PendingWrite, models.PendingWrite, bool) {
	for i, w := range writes {
		if w.ID == id {
			rest := make([]models.PendingWrite, 0, len(writes)-1)
			rest = append(rest, writes[:i]...)
			rest = append(rest, writes[i+1:]...)
			return rest, w, true
		}
	}
	return writes, models.PendingWrite{}, false
}
