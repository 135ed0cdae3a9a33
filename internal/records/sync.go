package records

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitsync/internal/models"
)

// Load replaces local state with the owner's remote habits and completions
// and recomputes every cached streak locally.
func (s *Store) Load(ctx context.Context) error {
	ownerID, err := s.owner()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	habitRecs, err := s.gw.List(ctx, string(habits), ownerID)
	if err != nil {
		return fmt.Errorf("failed to list habits: %w", err)
	}
	completionRecs, err := s.gw.List(ctx, string(completions), ownerID)
	if err != nil {
		return fmt.Errorf("failed to list completions: %w", err)
	}

	hs := make(map[string]models.Habit, len(habitRecs))
	for _, rec := range habitRecs {
		id, _ := rec.ID()
		h, err := models.HabitFromRecord(id, rec)
		if err != nil {
			return err
		}
		hs[h.ID] = h
	}
	cs := make(map[string]models.Completion, len(completionRecs))
	for _, rec := range completionRecs {
		id, _ := rec.ID()
		c, err := models.CompletionFromRecord(id, rec)
		if err != nil {
			return err
		}
		cs[c.ID] = c
	}

	s.stateMu.Lock()
	s.habits = hs
	s.completions = cs
	s.stateMu.Unlock()

	for id := range hs {
		s.recomputeStreak(id)
	}
	s.log.Debug("loaded records", "habits", len(hs), "completions", len(cs))
	return nil
}

// ApplySynced folds a queued write that just reached the remote store into
// local state. remoteID is the id assigned by the store for adds.
//
// A completion change that moves a habit's streak queues a streak update for
// the next cycle instead of calling the remote store directly.
func (s *Store) ApplySynced(ctx context.Context, w models.PendingWrite, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch w.Collection {
	case habits:
		return s.applyHabit(w, remoteID)
	case completions:
		habitID, err := s.applyCompletion(w, remoteID)
		if err != nil || habitID == "" {
			return err
		}
		n, changed := s.recomputeStreak(habitID)
		if !changed {
			return nil
		}
		if _, err := s.queue.Enqueue(ctx, models.OpUpdate, habits, models.Record{"id": habitID, "streak": n}); err != nil {
			return fmt.Errorf("failed to queue streak update: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown collection %q", w.Collection)
	}
}

func (s *Store) applyHabit(w models.PendingWrite, remoteID string) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	id, _ := w.Payload.ID()
	switch w.Operation {
	case models.OpAdd:
		h, err := models.HabitFromRecord(remoteID, w.Payload)
		if err != nil {
			return err
		}
		s.habits[h.ID] = h
	case models.OpUpdate, models.OpToggle:
		h, ok := s.habits[id]
		if !ok {
			return nil
		}
		var p models.HabitPatch
		if err := models.FromRecord(w.Payload.Without("id"), &p); err != nil {
			return fmt.Errorf("failed to decode habit patch: %w", err)
		}
		p.Apply(&h)
		s.habits[id] = h
	case models.OpDelete:
		delete(s.habits, id)
	default:
		return fmt.Errorf("unknown operation %q", w.Operation)
	}
	return nil
}

// applyCompletion returns the id of the habit whose completions changed
func (s *Store) applyCompletion(w models.PendingWrite, remoteID string) (string, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	id, _ := w.Payload.ID()
	switch w.Operation {
	case models.OpAdd:
		c, err := models.CompletionFromRecord(remoteID, w.Payload)
		if err != nil {
			return "", err
		}
		if dup, ok := s.findCompletionLocked(c.HabitID, c.Date); ok {
			s.log.Warn("synced completion duplicates a local one", "habit", c.HabitID, "date", c.Date, "local", dup.ID, "remote", c.ID)
		}
		s.completions[c.ID] = c
		return c.HabitID, nil
	case models.OpUpdate, models.OpToggle:
		c, ok := s.completions[id]
		if !ok {
			return "", nil
		}
		if err := models.FromRecord(w.Payload.Without("id"), &c); err != nil {
			return "", fmt.Errorf("failed to decode completion patch: %w", err)
		}
		c.ID = id
		s.completions[id] = c
		return c.HabitID, nil
	case models.OpDelete:
		c, ok := s.completions[id]
		if !ok {
			return "", nil
		}
		delete(s.completions, id)
		return c.HabitID, nil
	default:
		return "", fmt.Errorf("unknown operation %q", w.Operation)
	}
}
