// Package export writes a user's habits and completions in portable formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/julianstephens/habitsync/internal/models"
)

// Format selects the output encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Source is the read side of the record store
type Source interface {
	Habits() []models.Habit
	Completions(habitID string) []models.Completion
}

// Snapshot is the exported view of one owner's data
type Snapshot struct {
	ExportedAt time.Time     `json:"exported_at"`
	Habits     []HabitExport `json:"habits"`
}

// HabitExport is a habit together with its completion history
type HabitExport struct {
	models.Habit
	Completions []models.Completion `json:"completions"`
}

var csvHeader = []string{"habit_id", "habit_name", "goal_type", "goal_value", "streak", "date", "completed", "value"}

// Collect builds a snapshot from the store; completions are ordered by date
func Collect(src Source, at time.Time) Snapshot {
	snap := Snapshot{ExportedAt: at.UTC(), Habits: []HabitExport{}}
	for _, h := range src.Habits() {
		cs := src.Completions(h.ID)
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Date < cs[j].Date })
		if cs == nil {
			cs = []models.Completion{}
		}
		snap.Habits = append(snap.Habits, HabitExport{Habit: h, Completions: cs})
	}
	return snap
}

// Write encodes the snapshot in the requested format
func Write(w io.Writer, format Format, snap Snapshot) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, snap)
	case FormatCSV:
		return WriteCSV(w, snap)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteJSON writes the snapshot as indented JSON
func WriteJSON(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// WriteCSV writes one row per completion. Habits without completions get a
// single row with the day columns left empty.
func WriteCSV(w io.Writer, snap Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, h := range snap.Habits {
		base := []string{h.ID, h.Name, string(h.GoalType), optInt(h.GoalValue), strconv.Itoa(h.Streak)}
		if len(h.Completions) == 0 {
			if err := cw.Write(append(base, "", "", "")); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
			continue
		}
		for _, c := range h.Completions {
			row := append(append([]string(nil), base...), c.Date, strconv.FormatBool(c.Completed), optInt(c.Value))
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
