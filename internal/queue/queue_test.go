package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitsync/internal/models"
)

func newTestQueue(t *testing.T) (*Queue, *MemoryPersister) {
	t.Helper()
	p := NewMemoryPersister(models.QueueState{})
	fixed := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	q := New(p, WithClock(func() time.Time { return fixed }))
	require.NoError(t, q.Load(context.Background()))
	return q, p
}

func TestQueue_EnqueuePersists(t *testing.T) {
	ctx := context.Background()
	q, p := newTestQueue(t)

	w, err := q.Enqueue(ctx, models.OpAdd, models.CollectionHabits, models.Record{"name": "Read"})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, 0, w.RetryCount)
	assert.Equal(t, time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC), w.Timestamp)

	state := p.State()
	require.Len(t, state.Pending, 1)
	assert.Equal(t, w.ID, state.Pending[0].ID)
	assert.Equal(t, 1, q.Count())
}

func TestQueue_MoveToFailedIncrementsRetry(t *testing.T) {
	ctx := context.Background()
	q, p := newTestQueue(t)

	w, err := q.Enqueue(ctx, models.OpUpdate, models.CollectionHabits, models.Record{"id": "h1"})
	require.NoError(t, err)

	moved, err := q.MoveToFailed(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.RetryCount)
	assert.Empty(t, q.Pending())
	require.Len(t, q.Failed(), 1)
	assert.Equal(t, 1, q.Count(), "failed writes still count as uncommitted")

	state := p.State()
	assert.Empty(t, state.Pending)
	require.Len(t, state.Failed, 1)
	assert.Equal(t, 1, state.Failed[0].RetryCount)
}

func TestQueue_RetryFailedKeepsRetryCount(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	w, _ := q.Enqueue(ctx, models.OpDelete, models.CollectionHabits, models.Record{"id": "h1"})
	_, err := q.MoveToFailed(ctx, w.ID)
	require.NoError(t, err)

	require.NoError(t, q.RetryFailed(ctx, w.ID))
	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Empty(t, q.Failed())

	assert.ErrorIs(t, q.RetryFailed(ctx, w.ID), ErrNotFound)
}

func TestQueue_RetryAllFailed(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for i := 0; i < 3; i++ {
		w, _ := q.Enqueue(ctx, models.OpToggle, models.CollectionCompletions, models.Record{"id": "c"})
		_, err := q.MoveToFailed(ctx, w.ID)
		require.NoError(t, err)
	}

	n, err := q.RetryAllFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, q.Pending(), 3)
	assert.Empty(t, q.Failed())

	n, err = q.RetryAllFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQueue_DiscardAndClear(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	a, _ := q.Enqueue(ctx, models.OpAdd, models.CollectionHabits, models.Record{})
	b, _ := q.Enqueue(ctx, models.OpAdd, models.CollectionHabits, models.Record{})
	_, err := q.MoveToFailed(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, q.Discard(ctx, a.ID))
	assert.ErrorIs(t, q.Discard(ctx, a.ID), ErrNotFound)

	dropped, err := q.ClearFailed(ctx)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, b.ID, dropped[0].ID)
	assert.Equal(t, 0, q.Count())
}

func TestQueue_RemoveUnknown(t *testing.T) {
	q, _ := newTestQueue(t)
	assert.ErrorIs(t, q.Remove(context.Background(), "nope"), ErrNotFound)
	_, err := q.MoveToFailed(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueue_LoadRestoresState(t *testing.T) {
	ctx := context.Background()
	last := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	started := time.Date(2024, 1, 5, 8, 1, 0, 0, time.UTC)
	p := NewMemoryPersister(models.QueueState{
		Pending:        []models.PendingWrite{{ID: "p1", Operation: models.OpAdd}},
		Failed:         []models.PendingWrite{{ID: "f1", Operation: models.OpUpdate, RetryCount: 2}},
		LastSyncTime:   &last,
		CycleStartedAt: &started,
	})

	q := New(p)
	require.NoError(t, q.Load(ctx))
	assert.Equal(t, 2, q.Count())
	require.NotNil(t, q.LastSyncTime())
	assert.Equal(t, last, *q.LastSyncTime())
	require.NotNil(t, q.CycleStartedAt())

	require.NoError(t, q.EndCycle(ctx))
	assert.Nil(t, q.CycleStartedAt())
	assert.Nil(t, p.State().CycleStartedAt)
}

func TestQueue_SaveErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	q, p := newTestQueue(t)
	p.FailSaves(errors.New("disk full"))

	_, err := q.Enqueue(ctx, models.OpAdd, models.CollectionHabits, models.Record{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	ctx := context.Background()
	q, p := newTestQueue(t)

	// Seed writes the consumer will drain
	var seeded []string
	for i := 0; i < 50; i++ {
		w, err := q.Enqueue(ctx, models.OpAdd, models.CollectionHabits, models.Record{})
		require.NoError(t, err)
		seeded = append(seeded, w.ID)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = q.Enqueue(ctx, models.OpUpdate, models.CollectionHabits, models.Record{})
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range seeded {
			_ = q.Remove(ctx, id)
		}
	}()
	wg.Wait()

	assert.Equal(t, 50, q.Count())
	assert.Len(t, p.State().Pending, 50, "persisted state must match memory after concurrent access")
}
