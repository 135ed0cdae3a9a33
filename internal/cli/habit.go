package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/julianstephens/habitsync/internal/models"
)

type HabitCmd struct {
	Add    HabitAddCmd    `cmd:"" help:"Add a new habit."`
	Edit   HabitEditCmd   `cmd:"" help:"Edit an existing habit."`
	Delete HabitDeleteCmd `cmd:"" help:"Delete a habit."`
	List   HabitListCmd   `cmd:"" help:"List habits."`
}

type HabitAddCmd struct {
	Name      string `arg:"" help:"Habit name."`
	Icon      string `help:"Icon shown next to the habit." default:"•"`
	GoalType  string `help:"Goal type (check, reps, time)." enum:"check,reps,time" default:"check"`
	GoalValue int    `help:"Target repetitions or minutes for reps/time goals."`
	Reminder  string `help:"Reminder time in HH:MM format."`
	Repeat    string `help:"Comma-separated weekdays (e.g. mon,wed,fri). Empty means every day."`
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	days, err := parseWeekdays(c.Repeat)
	if err != nil {
		return err
	}
	draft := models.HabitDraft{
		Name:         c.Name,
		Icon:         c.Icon,
		GoalType:     models.GoalType(c.GoalType),
		ReminderTime: c.Reminder,
		RepeatDays:   days,
	}
	if c.GoalValue != 0 {
		v := c.GoalValue
		draft.GoalValue = &v
	}

	h, err := ctx.Records.AddHabit(ctx.base(), draft)
	return ctx.reportMutation(err, fmt.Sprintf("Added habit: %s (%s)", h.Name, h.ID))
}

type HabitEditCmd struct {
	ID        string `arg:"" help:"Habit ID."`
	Name      string `help:"New name."`
	Icon      string `help:"New icon."`
	GoalType  string `help:"New goal type (check, reps, time)."`
	GoalValue string `help:"New goal value."`
	Reminder  string `help:"New reminder time (HH:MM); 'none' clears it."`
	Repeat    string `help:"New comma-separated weekdays; 'all' clears the restriction."`
}

func (c *HabitEditCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	var patch models.HabitPatch
	if c.Name != "" {
		patch.Name = &c.Name
	}
	if c.Icon != "" {
		patch.Icon = &c.Icon
	}
	if c.GoalType != "" {
		gt := models.GoalType(c.GoalType)
		patch.GoalType = &gt
	}
	if c.GoalValue != "" {
		v, err := strconv.Atoi(c.GoalValue)
		if err != nil {
			return fmt.Errorf("invalid goal value %q: %w", c.GoalValue, err)
		}
		patch.GoalValue = &v
	}
	switch c.Reminder {
	case "":
	case "none":
		empty := ""
		patch.ReminderTime = &empty
	default:
		patch.ReminderTime = &c.Reminder
	}
	switch c.Repeat {
	case "":
	case "all":
		empty := []string{}
		patch.RepeatDays = &empty
	default:
		days, err := parseWeekdays(c.Repeat)
		if err != nil {
			return err
		}
		patch.RepeatDays = &days
	}

	h, err := ctx.Records.UpdateHabit(ctx.base(), c.ID, patch)
	return ctx.reportMutation(err, fmt.Sprintf("Updated habit: %s", h.Name))
}

type HabitDeleteCmd struct {
	ID string `arg:"" help:"Habit ID."`
}

func (c *HabitDeleteCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}
	h, err := ctx.Records.Habit(c.ID)
	if err != nil {
		return err
	}
	err = ctx.Records.DeleteHabit(ctx.base(), c.ID)
	return ctx.reportMutation(err, fmt.Sprintf("Deleted habit: %s", h.Name))
}

type HabitListCmd struct{}

func (c *HabitListCmd) Run(ctx *Context) error {
	if err := ctx.Open(); err != nil {
		return err
	}

	habits := ctx.Records.Habits()
	if len(habits) == 0 {
		ctx.println("No habits found.")
		return nil
	}

	tw := tabwriter.NewWriter(ctx.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tHABIT\tGOAL\tREPEAT\tSTREAK")
	for _, h := range habits {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%d\n", h.ID, h.Icon, h.Name, formatGoal(h), formatRepeat(h.RepeatDays), h.Streak)
	}
	return tw.Flush()
}

var dayMap = map[string]string{
	"sun": "sun", "sunday": "sun",
	"mon": "mon", "monday": "mon",
	"tue": "tue", "tuesday": "tue",
	"wed": "wed", "wednesday": "wed",
	"thu": "thu", "thursday": "thu",
	"fri": "fri", "friday": "fri",
	"sat": "sat", "saturday": "sat",
}

var dayByNumber = []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// parseWeekdays parses a comma-separated list of weekdays into their
// three-letter names. An empty string means no restriction.
func parseWeekdays(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var days []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if d, ok := dayMap[part]; ok {
			days = append(days, d)
			continue
		}
		// 0=Sunday, 6=Saturday
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 6 {
			return nil, fmt.Errorf("invalid weekday: %s", part)
		}
		days = append(days, dayByNumber[num])
	}
	return days, nil
}

func formatGoal(h models.Habit) string {
	switch h.GoalType {
	case models.GoalReps:
		if h.GoalValue != nil {
			return fmt.Sprintf("%d reps", *h.GoalValue)
		}
	case models.GoalTime:
		if h.GoalValue != nil {
			return fmt.Sprintf("%d min", *h.GoalValue)
		}
	}
	return string(h.GoalType)
}

func formatRepeat(days []string) string {
	if len(days) == 0 {
		return "daily"
	}
	return strings.Join(days, ",")
}
