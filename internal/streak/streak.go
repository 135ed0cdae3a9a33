// Package streak derives consecutive-day metrics from a habit's completion history.
//
// All functions are pure. Dates are calendar days (YYYY-MM-DD); day arithmetic
// is done at UTC midnight so daylight-saving transitions never open a gap.
package streak

import (
	"sort"
	"time"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/models"
)

// Stats summarizes a habit's completion history
type Stats struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
	Total   int `json:"total"`
}

// Calculate computes current streak, longest streak and total completed days.
// Completions for other habits must already be filtered out.
func Calculate(completions []models.Completion, today time.Time) Stats {
	days := completedDays(completions)
	return Stats{
		Current: current(days, Day(today)),
		Longest: longest(days),
		Total:   len(days),
	}
}

// Current counts consecutive completed days ending today. Today itself is
// optional: an incomplete today does not break the streak, it is simply not
// counted. Any earlier missing day ends the walk.
func Current(completions []models.Completion, today time.Time) int {
	return current(completedDays(completions), Day(today))
}

// Longest returns the longest run of consecutive completed days.
func Longest(completions []models.Completion) int {
	return longest(completedDays(completions))
}

// IsMilestone reports whether n is a streak length worth celebrating
func IsMilestone(n int) bool {
	for _, m := range constants.Milestones {
		if m == n {
			return true
		}
	}
	return false
}

// NextMilestone returns the smallest milestone strictly greater than n, or 0
// once every milestone has been passed.
func NextMilestone(n int) int {
	for _, m := range constants.Milestones {
		if m > n {
			return m
		}
	}
	return 0
}

// Day truncates t to its calendar day, keeping the wall-clock date of t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string as a calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

func completedDays(completions []models.Completion) []time.Time {
	seen := make(map[time.Time]struct{}, len(completions))
	days := make([]time.Time, 0, len(completions))
	for _, c := range completions {
		if !c.Completed {
			continue
		}
		d, err := ParseDay(c.Date)
		if err != nil {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func current(days []time.Time, today time.Time) int {
	done := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		done[d] = struct{}{}
	}

	streak := 0
	for i := 0; ; i++ {
		check := today.AddDate(0, 0, -i)
		if _, ok := done[check]; ok {
			streak++
			continue
		}
		if i == 0 {
			continue
		}
		return streak
	}
}

func longest(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
