package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// GoalType describes how a habit is measured
type GoalType string

const (
	GoalCheck GoalType = "check"
	GoalReps  GoalType = "reps"
	GoalTime  GoalType = "time"
)

// Valid reports whether g is a known goal type
func (g GoalType) Valid() bool {
	switch g {
	case GoalCheck, GoalReps, GoalTime:
		return true
	}
	return false
}

// Habit represents a recurring practice owned by one user
type Habit struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	Icon         string    `json:"icon"`
	GoalType     GoalType  `json:"goal_type"`
	GoalValue    *int      `json:"goal_value,omitempty"`
	ReminderTime string    `json:"reminder_time,omitempty"` // HH:MM
	RepeatDays   []string  `json:"repeat_days,omitempty"`
	Streak       int       `json:"streak"` // cached current streak, derived from completions
	CreatedAt    time.Time `json:"created_at"`
}

// HabitDraft holds the user-supplied fields of a new habit
type HabitDraft struct {
	Name         string
	Icon         string
	GoalType     GoalType
	GoalValue    *int
	ReminderTime string
	RepeatDays   []string
}

// HabitPatch is a partial update; nil fields are left untouched
type HabitPatch struct {
	Name         *string   `json:"name,omitempty"`
	Icon         *string   `json:"icon,omitempty"`
	GoalType     *GoalType `json:"goal_type,omitempty"`
	GoalValue    *int      `json:"goal_value,omitempty"`
	ReminderTime *string   `json:"reminder_time,omitempty"`
	RepeatDays   *[]string `json:"repeat_days,omitempty"`
	Streak       *int      `json:"streak,omitempty"`
}

// Empty reports whether the patch sets no fields
func (p HabitPatch) Empty() bool {
	return p.Name == nil && p.Icon == nil && p.GoalType == nil && p.GoalValue == nil &&
		p.ReminderTime == nil && p.RepeatDays == nil && p.Streak == nil
}

// Apply merges the patch into h
func (p HabitPatch) Apply(h *Habit) {
	if p.Name != nil {
		h.Name = *p.Name
	}
	if p.Icon != nil {
		h.Icon = *p.Icon
	}
	if p.GoalType != nil {
		h.GoalType = *p.GoalType
	}
	if p.GoalValue != nil {
		v := *p.GoalValue
		h.GoalValue = &v
	}
	if p.ReminderTime != nil {
		h.ReminderTime = *p.ReminderTime
	}
	if p.RepeatDays != nil {
		h.RepeatDays = append([]string(nil), (*p.RepeatDays)...)
	}
	if p.Streak != nil {
		h.Streak = *p.Streak
	}
}

// Record returns the patch as a document containing only the set fields
func (p HabitPatch) Record() (Record, error) {
	return ToRecord(p)
}

// Clone returns a deep copy of h so snapshots never share slices or pointers
func (h Habit) Clone() Habit {
	c := h
	if h.GoalValue != nil {
		v := *h.GoalValue
		c.GoalValue = &v
	}
	if h.RepeatDays != nil {
		c.RepeatDays = append([]string(nil), h.RepeatDays...)
	}
	return c
}

// Record converts the habit into a remote document without its id
func (h Habit) Record() (Record, error) {
	rec, err := ToRecord(h)
	if err != nil {
		return nil, err
	}
	delete(rec, "id")
	return rec, nil
}

// HabitFromRecord decodes a remote document into a Habit
func HabitFromRecord(id string, rec Record) (Habit, error) {
	var h Habit
	if err := FromRecord(rec, &h); err != nil {
		return Habit{}, fmt.Errorf("failed to decode habit %s: %w", id, err)
	}
	if id != "" {
		h.ID = id
	}
	return h, nil
}

// Record is a schemaless document as exchanged with the remote store
type Record map[string]any

// ID returns the "id" field of the record, if present
func (r Record) ID() (string, bool) {
	id, ok := r["id"].(string)
	return id, ok && id != ""
}

// Without returns a shallow copy of r with the given keys removed
func (r Record) Without(keys ...string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// ToRecord converts any JSON-serializable value into a Record
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FromRecord decodes a Record into out
func FromRecord(rec Record, out any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
