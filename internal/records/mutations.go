package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/streak"
	"github.com/julianstephens/habitsync/internal/validation"
)

const (
	habits      = models.CollectionHabits
	completions = models.CollectionCompletions
)

// AddHabit inserts a habit under a temporary id and creates it remotely.
// On success the temporary id is replaced by the remote one.
func (s *Store) AddHabit(ctx context.Context, d models.HabitDraft) (models.Habit, error) {
	ownerID, err := s.owner()
	if err != nil {
		return models.Habit{}, err
	}
	d.Name = validation.NormalizeName(d.Name)
	if err := validation.ValidateDraft(d); err != nil {
		return models.Habit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := models.Habit{
		ID:           tempID(),
		OwnerID:      ownerID,
		Name:         d.Name,
		Icon:         d.Icon,
		GoalType:     d.GoalType,
		GoalValue:    d.GoalValue,
		ReminderTime: d.ReminderTime,
		RepeatDays:   d.RepeatDays,
		CreatedAt:    s.now().UTC(),
	}
	h = h.Clone()
	rec, err := h.Record()
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to encode habit: %w", err)
	}

	var remoteID string
	err = s.mutate(ctx, mutation{
		apply: func() { s.habits[h.ID] = h },
		remote: func(ctx context.Context) error {
			id, err := s.gw.Create(ctx, string(habits), rec)
			remoteID = id
			return err
		},
		commit: func() {
			delete(s.habits, h.ID)
			h.ID = remoteID
			s.habits[h.ID] = h
		},
		restore: func() { delete(s.habits, h.ID) },
		pending: func() (models.Operation, models.Collection, models.Record) {
			return models.OpAdd, habits, rec
		},
	})
	if err != nil {
		return models.Habit{}, err
	}
	return h.Clone(), nil
}

// UpdateHabit merges patch into a habit and updates it remotely
func (s *Store) UpdateHabit(ctx context.Context, id string, p models.HabitPatch) (models.Habit, error) {
	if _, err := s.owner(); err != nil {
		return models.Habit{}, err
	}
	if p.Name != nil {
		name := validation.NormalizeName(*p.Name)
		p.Name = &name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Habit(id)
	if err != nil {
		return models.Habit{}, err
	}
	if err := validation.ValidatePatch(current, p); err != nil {
		return models.Habit{}, err
	}
	patch, err := p.Record()
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to encode patch: %w", err)
	}

	var before, after models.Habit
	err = s.mutate(ctx, mutation{
		snapshot: func() { before = s.habits[id].Clone() },
		apply: func() {
			after = before.Clone()
			p.Apply(&after)
			s.habits[id] = after
		},
		remote: func(ctx context.Context) error {
			return s.gw.Update(ctx, string(habits), id, patch)
		},
		restore: func() { s.habits[id] = before },
		pending: func() (models.Operation, models.Collection, models.Record) {
			return models.OpUpdate, habits, withID(id, patch)
		},
	})
	if err != nil {
		return models.Habit{}, err
	}
	return after.Clone(), nil
}

// DeleteHabit removes a habit locally and remotely. Its completions are kept.
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	if _, err := s.owner(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Habit(id); err != nil {
		return err
	}

	var before models.Habit
	return s.mutate(ctx, mutation{
		snapshot: func() { before = s.habits[id] },
		apply:    func() { delete(s.habits, id) },
		remote: func(ctx context.Context) error {
			return s.gw.Delete(ctx, string(habits), id)
		},
		restore: func() { s.habits[id] = before },
		pending: func() (models.Operation, models.Collection, models.Record) {
			return models.OpDelete, habits, models.Record{"id": id}
		},
	})
}

// ToggleCompletion flips the completion of a habit on date, creating a
// completed one if none exists, then refreshes the habit's cached streak.
func (s *Store) ToggleCompletion(ctx context.Context, habitID, date string) (models.Completion, error) {
	ownerID, err := s.owner()
	if err != nil {
		return models.Completion{}, err
	}
	if err := validation.ValidateDate(date); err != nil {
		return models.Completion{}, fmt.Errorf("%w: %w", validation.ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Habit(habitID); err != nil {
		return models.Completion{}, err
	}

	s.stateMu.RLock()
	existing, found := s.findCompletionLocked(habitID, date)
	s.stateMu.RUnlock()

	var result models.Completion
	if found {
		result, err = s.flipCompletion(ctx, existing)
	} else {
		result, err = s.createCompletion(ctx, ownerID, habitID, date)
	}
	if err != nil && !errors.Is(err, ErrQueued) {
		return models.Completion{}, err
	}

	// the streak is refreshed even when the toggle was queued, since the
	// day may have moved on since it was last computed
	if serr := s.refreshStreak(ctx, habitID); serr != nil && err == nil {
		return result, serr
	}
	if err != nil {
		return models.Completion{}, err
	}
	return result, nil
}

func (s *Store) flipCompletion(ctx context.Context, existing models.Completion) (models.Completion, error) {
	id := existing.ID
	completed := !existing.Completed
	patch := models.Record{"completed": completed}

	var before, after models.Completion
	err := s.mutate(ctx, mutation{
		snapshot: func() { before = s.completions[id].Clone() },
		apply: func() {
			after = before.Clone()
			after.Completed = completed
			s.completions[id] = after
		},
		remote: func(ctx context.Context) error {
			return s.gw.Update(ctx, string(completions), id, patch)
		},
		restore: func() { s.completions[id] = before },
		pending: func() (models.Operation, models.Collection, models.Record) {
			return models.OpToggle, completions, withID(id, patch)
		},
	})
	if err != nil {
		return models.Completion{}, err
	}
	return after.Clone(), nil
}

func (s *Store) createCompletion(ctx context.Context, ownerID, habitID, date string) (models.Completion, error) {
	c := models.Completion{
		ID:        tempID(),
		HabitID:   habitID,
		OwnerID:   ownerID,
		Date:      date,
		Completed: true,
		CreatedAt: s.now().UTC(),
	}
	rec, err := c.Record()
	if err != nil {
		return models.Completion{}, fmt.Errorf("failed to encode completion: %w", err)
	}

	var remoteID string
	err = s.mutate(ctx, mutation{
		apply: func() { s.completions[c.ID] = c },
		remote: func(ctx context.Context) error {
			id, err := s.gw.Create(ctx, string(completions), rec)
			remoteID = id
			return err
		},
		commit: func() {
			delete(s.completions, c.ID)
			c.ID = remoteID
			s.completions[c.ID] = c
		},
		restore: func() { delete(s.completions, c.ID) },
		pending: func() (models.Operation, models.Collection, models.Record) {
			return models.OpAdd, completions, rec
		},
	})
	if err != nil {
		return models.Completion{}, err
	}
	return c.Clone(), nil
}

// refreshStreak recomputes the cached streak from local completions and
// pushes it when it changed. A failed push is queued without rolling the
// local value back, so the streak always agrees with local completions.
func (s *Store) refreshStreak(ctx context.Context, habitID string) error {
	n, changed := s.recomputeStreak(habitID)
	if !changed {
		return nil
	}

	patch := models.Record{"streak": n}
	remoteErr := s.gw.Update(ctx, string(habits), habitID, patch)
	if remoteErr == nil {
		return nil
	}
	w, err := s.queue.Enqueue(context.WithoutCancel(ctx), models.OpUpdate, habits, withID(habitID, patch))
	if err != nil {
		return fmt.Errorf("failed to queue streak update: %w", err)
	}
	s.log.Warn("streak update failed, queued", "write", w.ID, "habit", habitID, "streak", n, "err", remoteErr)
	return nil
}

// recomputeStreak stores the current streak of a habit and reports whether it changed
func (s *Store) recomputeStreak(habitID string) (int, bool) {
	today := s.Today()
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	h, ok := s.habits[habitID]
	if !ok {
		return 0, false
	}
	n := streak.Current(s.completionsLocked(habitID), today)
	if n == h.Streak {
		return n, false
	}
	h.Streak = n
	s.habits[habitID] = h
	return n, true
}

// Stats summarizes the completion history of one habit
func (s *Store) Stats(habitID string, today time.Time) (streak.Stats, error) {
	if _, err := s.Habit(habitID); err != nil {
		return streak.Stats{}, err
	}
	return streak.Calculate(s.Completions(habitID), today), nil
}

func withID(id string, rec models.Record) models.Record {
	out := rec.Without()
	out["id"] = id
	return out
}
