package models

import (
	"fmt"
	"time"
)

// Completion records whether a habit was done on a calendar day.
// At most one completion exists per (HabitID, Date).
type Completion struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habit_id"`
	OwnerID   string    `json:"owner_id"`
	Date      string    `json:"date"` // YYYY-MM-DD format
	Completed bool      `json:"completed"`
	Value     *int      `json:"value,omitempty"` // for reps/time goals
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of c
func (c Completion) Clone() Completion {
	out := c
	if c.Value != nil {
		v := *c.Value
		out.Value = &v
	}
	return out
}

// Record converts the completion into a remote document without its id
func (c Completion) Record() (Record, error) {
	rec, err := ToRecord(c)
	if err != nil {
		return nil, err
	}
	delete(rec, "id")
	return rec, nil
}

// CompletionFromRecord decodes a remote document into a Completion
func CompletionFromRecord(id string, rec Record) (Completion, error) {
	var c Completion
	if err := FromRecord(rec, &c); err != nil {
		return Completion{}, fmt.Errorf("failed to decode completion %s: %w", id, err)
	}
	if id != "" {
		c.ID = id
	}
	return c, nil
}
