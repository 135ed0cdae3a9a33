package cli

import (
	"fmt"
	"strings"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/streak"
)

type DoneCmd struct {
	HabitID string `arg:"" help:"Habit ID."`
	Date    string `help:"Date in YYYY-MM-DD format (default: today)." default:""`
}

func (c *DoneCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	date := c.Date
	if date == "" {
		date = ctx.Records.Today().Format(constants.DateFormat)
	}

	comp, err := ctx.Records.ToggleCompletion(ctx.base(), c.HabitID, date)
	if err != nil {
		return ctx.reportMutation(err, "")
	}

	h, err := ctx.Records.Habit(c.HabitID)
	if err != nil {
		return err
	}
	if comp.Completed {
		ctx.printf("✓ %s done for %s (streak: %d)\n", h.Name, date, h.Streak)
		if streak.IsMilestone(h.Streak) {
			ctx.printf("🎉 %d day milestone!\n", h.Streak)
		}
	} else {
		ctx.printf("✗ %s unmarked for %s (streak: %d)\n", h.Name, date, h.Streak)
	}
	return nil
}

type TodayCmd struct{}

func (c *TodayCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	today := ctx.Records.Today()
	habits := ctx.Records.Habits()
	ctx.printf("Today (%s)\n", today.Format(constants.DateFormat))
	if len(habits) == 0 {
		ctx.println("No habits found.")
		return nil
	}

	done := make(map[string]bool)
	for _, comp := range ctx.Records.TodayCompletions(today) {
		done[comp.HabitID] = comp.Completed
	}
	for _, h := range habits {
		mark := " "
		if done[h.ID] {
			mark = "x"
		}
		ctx.printf("  [%s] %s %s\n", mark, h.Icon, h.Name)
	}
	ctx.printf("Completion rate: %d%%\n", ctx.Records.CompletionRate(today))

	var week []string
	for _, d := range ctx.Records.WeeklySummary(today) {
		week = append(week, fmt.Sprintf("%s %3d%%", d.Date[5:], d.Rate))
	}
	ctx.printf("Last 7 days: %s\n", strings.Join(week, " | "))
	return nil
}

type StreakCmd struct {
	HabitID string `arg:"" help:"Habit ID."`
}

func (c *StreakCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	h, err := ctx.Records.Habit(c.HabitID)
	if err != nil {
		return err
	}
	stats, err := ctx.Records.Stats(c.HabitID, ctx.Records.Today())
	if err != nil {
		return err
	}

	ctx.printf("%s %s\n", h.Icon, h.Name)
	ctx.printf("  Current streak: %d\n", stats.Current)
	ctx.printf("  Longest streak: %d\n", stats.Longest)
	ctx.printf("  Total days:     %d\n", stats.Total)
	if next := streak.NextMilestone(stats.Current); next > 0 {
		ctx.printf("  Next milestone: %d (%d to go)\n", next, next-stats.Current)
	}
	return nil
}
