package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/models"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid habit")

var weekdays = map[string]bool{
	"sun": true, "mon": true, "tue": true, "wed": true, "thu": true, "fri": true, "sat": true,
}

// NormalizeName trims surrounding whitespace and applies NFC so visually
// identical names compare and measure the same.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName checks the habit name is non-empty and at most MaxHabitNameLen runes
func ValidateName(name string) error {
	n := utf8.RuneCountInString(NormalizeName(name))
	if n == 0 {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}
	if n > constants.MaxHabitNameLen {
		return fmt.Errorf("%w: name must be at most %d characters (got %d)", ErrInvalid, constants.MaxHabitNameLen, n)
	}
	return nil
}

// ValidateReminder checks an optional HH:MM reminder time
func ValidateReminder(reminder string) error {
	if reminder == "" {
		return nil
	}
	if _, err := time.Parse(constants.TimeFormat, reminder); err != nil {
		return fmt.Errorf("%w: reminder %q must be HH:MM", ErrInvalid, reminder)
	}
	return nil
}

// ValidateRepeatDays checks every entry is a three-letter lowercase weekday without duplicates
func ValidateRepeatDays(days []string) error {
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		if !weekdays[d] {
			return fmt.Errorf("%w: unknown repeat day %q", ErrInvalid, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: repeat day %q listed twice", ErrInvalid, d)
		}
		seen[d] = true
	}
	return nil
}

// ValidateGoal checks the goal type and that counted goals carry a positive value
func ValidateGoal(goalType models.GoalType, goalValue *int) error {
	if !goalType.Valid() {
		return fmt.Errorf("%w: unknown goal type %q", ErrInvalid, goalType)
	}
	if goalType == models.GoalCheck {
		return nil
	}
	if goalValue == nil || *goalValue <= 0 {
		return fmt.Errorf("%w: %s goals need a positive goal value", ErrInvalid, goalType)
	}
	return nil
}

// ValidateDraft checks a new habit before it is inserted
func ValidateDraft(d models.HabitDraft) error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateGoal(d.GoalType, d.GoalValue); err != nil {
		return err
	}
	if err := ValidateReminder(d.ReminderTime); err != nil {
		return err
	}
	return ValidateRepeatDays(d.RepeatDays)
}

// ValidatePatch checks an update against the habit it will be merged into
func ValidatePatch(current models.Habit, p models.HabitPatch) error {
	if p.Empty() {
		return fmt.Errorf("%w: nothing to update", ErrInvalid)
	}
	merged := current.Clone()
	p.Apply(&merged)

	if p.Name != nil {
		if err := ValidateName(merged.Name); err != nil {
			return err
		}
	}
	if p.GoalType != nil || p.GoalValue != nil {
		if err := ValidateGoal(merged.GoalType, merged.GoalValue); err != nil {
			return err
		}
	}
	if p.ReminderTime != nil {
		if err := ValidateReminder(merged.ReminderTime); err != nil {
			return err
		}
	}
	if p.RepeatDays != nil {
		if err := ValidateRepeatDays(merged.RepeatDays); err != nil {
			return err
		}
	}
	if p.Streak != nil {
		return fmt.Errorf("%w: streak is derived from completions and cannot be set", ErrInvalid)
	}
	return nil
}

// ValidateDate checks a YYYY-MM-DD calendar day
func ValidateDate(date string) error {
	if _, err := time.Parse(constants.DateFormat, date); err != nil {
		return fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", date)
	}
	return nil
}
