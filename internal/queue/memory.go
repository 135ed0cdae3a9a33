package queue

import (
	"context"
	"sync"

	"github.com/julianstephens/habitsync/internal/models"
)

// MemoryPersister keeps queue state in memory. It is used in tests and when a
// process does not need the queue to outlive it.
type MemoryPersister struct {
	mu    sync.Mutex
	state models.QueueState
	saves int
	err   error
}

// NewMemoryPersister creates a persister seeded with state
func NewMemoryPersister(state models.QueueState) *MemoryPersister {
	return &MemoryPersister{state: state.Clone()}
}

func (p *MemoryPersister) Load(ctx context.Context) (models.QueueState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone(), nil
}

func (p *MemoryPersister) Save(ctx context.Context, state models.QueueState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.state = state.Clone()
	p.saves++
	return nil
}

// State returns the last saved state
func (p *MemoryPersister) State() models.QueueState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Saves returns how many successful saves happened
func (p *MemoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

// FailSaves makes subsequent saves return err; nil restores normal behavior
func (p *MemoryPersister) FailSaves(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}
