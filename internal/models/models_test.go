package models

import (
	"testing"
	"time"
)

func TestHabitPatchApply(t *testing.T) {
	goal := 10
	h := Habit{ID: "h1", Name: "Read", GoalType: GoalCheck, RepeatDays: []string{"mon"}}

	name := "Read more"
	gt := GoalReps
	days := []string{"mon", "wed"}
	HabitPatch{Name: &name, GoalType: &gt, GoalValue: &goal, RepeatDays: &days}.Apply(&h)

	if h.Name != "Read more" {
		t.Errorf("expected name %q, got %q", "Read more", h.Name)
	}
	if h.GoalType != GoalReps {
		t.Errorf("expected goal type reps, got %q", h.GoalType)
	}
	if h.GoalValue == nil || *h.GoalValue != 10 {
		t.Errorf("expected goal value 10, got %v", h.GoalValue)
	}
	days[0] = "sun"
	if h.RepeatDays[0] != "mon" {
		t.Error("patch application must not alias the patch slice")
	}
}

func TestHabitPatchRecordOnlySetFields(t *testing.T) {
	streak := 4
	rec, err := HabitPatch{Streak: &streak}.Record()
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}
	if len(rec) != 1 {
		t.Fatalf("expected 1 field, got %d: %v", len(rec), rec)
	}
	if v, ok := rec["streak"].(float64); !ok || v != 4 {
		t.Errorf("expected streak 4, got %v", rec["streak"])
	}
}

func TestHabitRecordRoundTrip(t *testing.T) {
	goal := 20
	h := Habit{
		ID:        "abc",
		OwnerID:   "user-1",
		Name:      "Push-ups",
		GoalType:  GoalReps,
		GoalValue: &goal,
		Streak:    3,
		CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	rec, err := h.Record()
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}
	if _, ok := rec["id"]; ok {
		t.Error("record should not carry the id")
	}

	back, err := HabitFromRecord("abc", rec)
	if err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if back.ID != "abc" || back.OwnerID != "user-1" || back.Streak != 3 {
		t.Errorf("unexpected habit after round trip: %+v", back)
	}
	if back.GoalValue == nil || *back.GoalValue != 20 {
		t.Errorf("expected goal value 20, got %v", back.GoalValue)
	}
	if !back.CreatedAt.Equal(h.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", h.CreatedAt, back.CreatedAt)
	}
}

func TestHabitCloneIsDeep(t *testing.T) {
	goal := 5
	h := Habit{GoalValue: &goal, RepeatDays: []string{"fri"}}
	c := h.Clone()
	*c.GoalValue = 9
	c.RepeatDays[0] = "sat"
	if *h.GoalValue != 5 || h.RepeatDays[0] != "fri" {
		t.Errorf("clone shares state with original: %+v", h)
	}
}

func TestRecordWithout(t *testing.T) {
	rec := Record{"id": "x", "completed": true}
	out := rec.Without("id")
	if _, ok := out["id"]; ok {
		t.Error("expected id to be removed")
	}
	if _, ok := rec["id"]; !ok {
		t.Error("Without must not modify the receiver")
	}
	if id, ok := rec.ID(); !ok || id != "x" {
		t.Errorf("expected id x, got %q", id)
	}
}
