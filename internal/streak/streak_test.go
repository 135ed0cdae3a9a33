package streak

import (
	"fmt"
	"testing"
	"time"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/models"
)

func day(s string) time.Time {
	t, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func completed(dates ...string) []models.Completion {
	out := make([]models.Completion, 0, len(dates))
	for i, d := range dates {
		out = append(out, models.Completion{ID: fmt.Sprintf("c%d", i), HabitID: "h1", Date: d, Completed: true})
	}
	return out
}

// run builds completions for every day in [today-(from), today-(to)], inclusive.
func run(today time.Time, from, to int) []models.Completion {
	var dates []string
	for i := from; i >= to; i-- {
		dates = append(dates, today.AddDate(0, 0, -i).Format(constants.DateFormat))
	}
	return completed(dates...)
}

func TestCurrent(t *testing.T) {
	today := day("2024-01-06")

	tests := []struct {
		name        string
		completions []models.Completion
		expected    int
	}{
		{name: "no completions", completions: nil, expected: 0},
		{name: "only today", completions: completed("2024-01-06"), expected: 1},
		{name: "only yesterday", completions: completed("2024-01-05"), expected: 1},
		{name: "two days ago breaks", completions: completed("2024-01-04"), expected: 0},
		{name: "five days ending yesterday", completions: completed("2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), expected: 5},
		{name: "gap before yesterday", completions: completed("2024-01-02", "2024-01-04", "2024-01-05", "2024-01-06"), expected: 3},
		{
			name: "uncompleted records are ignored",
			completions: append(completed("2024-01-05"),
				models.Completion{HabitID: "h1", Date: "2024-01-06", Completed: false},
				models.Completion{HabitID: "h1", Date: "2024-01-04", Completed: false}),
			expected: 1,
		},
		{name: "future completion ignored", completions: completed("2024-01-07"), expected: 0},
		{name: "malformed dates skipped", completions: completed("not-a-date", "2024-01-06"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Current(tt.completions, today); got != tt.expected {
				t.Errorf("Current() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestCurrentRunThroughToday(t *testing.T) {
	today := day("2024-03-15")
	for n := 1; n <= 40; n++ {
		// every day from -(n-1) to 0, nothing on -n
		completions := run(today, n-1, 0)
		if got := Current(completions, today); got != n {
			t.Errorf("n=%d: Current() = %d, want %d", n, got, n)
		}
	}
}

func TestCurrentRunEndingYesterday(t *testing.T) {
	today := day("2024-03-15")
	for n := 1; n <= 40; n++ {
		// every day from -n to -1, nothing on day 0
		completions := run(today, n, 1)
		if got := Current(completions, today); got != n {
			t.Errorf("n=%d: Current() = %d, want %d", n, got, n)
		}
	}
}

func TestLongest(t *testing.T) {
	tests := []struct {
		name        string
		completions []models.Completion
		expected    int
	}{
		{name: "empty", completions: nil, expected: 0},
		{name: "single", completions: completed("2024-01-01"), expected: 1},
		{name: "unsorted input", completions: completed("2024-01-03", "2024-01-01", "2024-01-02"), expected: 3},
		{name: "two runs", completions: completed("2024-01-01", "2024-01-02", "2024-01-05", "2024-01-06", "2024-01-07"), expected: 3},
		{name: "duplicate dates count once", completions: completed("2024-01-01", "2024-01-01", "2024-01-02"), expected: 2},
		{name: "month boundary", completions: completed("2024-01-31", "2024-02-01", "2024-02-02"), expected: 3},
		{name: "leap day", completions: completed("2024-02-28", "2024-02-29", "2024-03-01"), expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Longest(tt.completions); got != tt.expected {
				t.Errorf("Longest() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestLongestNeverBelowCurrent(t *testing.T) {
	today := day("2024-06-30")
	// Deterministic pseudo-random histories over 60 days
	seed := uint32(7)
	for trial := 0; trial < 200; trial++ {
		var dates []string
		for i := 0; i < 60; i++ {
			seed = seed*1664525 + 1013904223
			if seed>>28 > 5 {
				dates = append(dates, today.AddDate(0, 0, -i).Format(constants.DateFormat))
			}
		}
		completions := completed(dates...)
		stats := Calculate(completions, today)
		if stats.Longest < stats.Current {
			t.Fatalf("trial %d: longest %d < current %d", trial, stats.Longest, stats.Current)
		}
	}
}

func TestCalculateScenario(t *testing.T) {
	today := day("2024-01-06")
	completions := completed("2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05")

	stats := Calculate(completions, today)
	if stats.Current != 5 {
		t.Errorf("expected current 5, got %d", stats.Current)
	}
	if stats.Longest != 5 {
		t.Errorf("expected longest 5, got %d", stats.Longest)
	}
	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}

	completions = append(completions, completed("2024-01-06")...)
	if got := Current(completions, today); got != 6 {
		t.Errorf("expected current 6 after completing today, got %d", got)
	}
}

func TestDayUsesWallClockDate(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	late := time.Date(2024, 1, 6, 23, 30, 0, 0, loc)
	if got := Day(late).Format(constants.DateFormat); got != "2024-01-06" {
		t.Errorf("Day() = %s, want 2024-01-06", got)
	}
}

func TestMilestones(t *testing.T) {
	if !IsMilestone(7) || !IsMilestone(365) {
		t.Error("7 and 365 should be milestones")
	}
	if IsMilestone(8) {
		t.Error("8 should not be a milestone")
	}
	if got := NextMilestone(0); got != 7 {
		t.Errorf("NextMilestone(0) = %d, want 7", got)
	}
	if got := NextMilestone(30); got != 60 {
		t.Errorf("NextMilestone(30) = %d, want 60", got)
	}
	if got := NextMilestone(400); got != 0 {
		t.Errorf("NextMilestone(400) = %d, want 0", got)
	}
}
