// Package records is the optimistic local copy of a user's habits and
// completions.
//
// Mutations are applied locally first and then sent to the remote gateway.
// When the remote call fails the local change is rolled back and the write is
// handed to the offline queue, so every visible record is either confirmed,
// described by a pending write, or gone.
package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/session"
)

var (
	// ErrNotFound is returned for ids that are not in the local store
	ErrNotFound = errors.New("record not found")
	// ErrQueued wraps a remote failure whose write was rolled back locally
	// and queued for the next sync
	ErrQueued = errors.New("remote write failed; queued for sync")
)

// Enqueuer accepts writes that could not reach the remote store
type Enqueuer interface {
	Enqueue(ctx context.Context, op models.Operation, collection models.Collection, payload models.Record) (models.PendingWrite, error)
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for timestamps and "today"
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the time zone that decides which calendar day "today" is
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// Store holds habits and completions for the signed-in owner
type Store struct {
	// mu serializes whole mutations, remote call included
	mu sync.Mutex
	// stateMu guards the maps so reads see optimistic state mid-mutation
	stateMu     sync.RWMutex
	habits      map[string]models.Habit
	completions map[string]models.Completion

	gw      gateway.Gateway
	queue   Enqueuer
	session session.Provider
	now     func() time.Time
	loc     *time.Location
	log     *log.Logger
}

// New creates an empty store. Call Load to fetch the owner's records.
func New(gw gateway.Gateway, q Enqueuer, sp session.Provider, opts ...Option) *Store {
	s := &Store{
		habits:      make(map[string]models.Habit),
		completions: make(map[string]models.Completion),
		gw:          gw,
		queue:       q,
		session:     sp,
		now:         time.Now,
		loc:         time.Local,
		log:         logger.With("records"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar day in the store's location
func (s *Store) Today() time.Time {
	return s.now().In(s.loc)
}

// mutation describes one optimistic change. snapshot, apply, restore and
// commit run under the state lock; remote runs without it.
type mutation struct {
	snapshot func()
	apply    func()
	remote   func(ctx context.Context) error
	restore  func()
	commit   func()
	pending  func() (models.Operation, models.Collection, models.Record)
}

// mutate applies m optimistically and reconciles it with the remote store.
// Callers hold s.mu. On remote failure the change is restored and the
// pending write enqueued before the error is returned.
func (s *Store) mutate(ctx context.Context, m mutation) error {
	s.stateMu.Lock()
	if m.snapshot != nil {
		m.snapshot()
	}
	m.apply()
	s.stateMu.Unlock()

	remoteErr := m.remote(ctx)
	if remoteErr == nil {
		if m.commit != nil {
			s.stateMu.Lock()
			m.commit()
			s.stateMu.Unlock()
		}
		return nil
	}

	s.stateMu.Lock()
	m.restore()
	s.stateMu.Unlock()

	op, collection, payload := m.pending()
	// The caller's context may be what failed the remote call.
	w, err := s.queue.Enqueue(context.WithoutCancel(ctx), op, collection, payload)
	if err != nil {
		s.log.Error("failed to queue write after remote failure", "op", op, "collection", collection, "remote_err", remoteErr, "err", err)
		return fmt.Errorf("failed to queue %s %s: %w", op, collection, errors.Join(remoteErr, err))
	}
	s.log.Warn("remote write failed, queued", "write", w.ID, "op", op, "collection", collection, "err", remoteErr)
	return fmt.Errorf("%w: %w", ErrQueued, remoteErr)
}

func (s *Store) owner() (string, error) {
	id, err := s.session.Owner()
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", session.ErrNoOwner
	}
	return id, nil
}

func tempID() string {
	return constants.TempIDPrefix + uuid.NewString()
}

// Habits returns every local habit, oldest first
func (s *Store) Habits() []models.Habit {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	out := make([]models.Habit, 0, len(s.habits))
	for _, h := range s.habits {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Habit returns one habit by id
func (s *Store) Habit(id string) (models.Habit, error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	h, ok := s.habits[id]
	if !ok {
		return models.Habit{}, fmt.Errorf("%w: habit %s", ErrNotFound, id)
	}
	return h.Clone(), nil
}

// Completions returns the completions of one habit ordered by date
func (s *Store) Completions(habitID string) []models.Completion {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.completionsLocked(habitID)
}

func (s *Store) completionsLocked(habitID string) []models.Completion {
	out := make([]models.Completion, 0)
	for _, c := range s.completions {
		if c.HabitID == habitID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Completion finds the completion of a habit on date
func (s *Store) Completion(habitID, date string) (models.Completion, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	c, ok := s.findCompletionLocked(habitID, date)
	if !ok {
		return models.Completion{}, false
	}
	return c.Clone(), true
}

func (s *Store) findCompletionLocked(habitID, date string) (models.Completion, bool) {
	for _, c := range s.completions {
		if c.HabitID == habitID && c.Date == date {
			return c, true
		}
	}
	return models.Completion{}, false
}

// TodayCompletions returns the completed completions dated today.
// Completions of deleted habits are skipped.
func (s *Store) TodayCompletions(today time.Time) []models.Completion {
	date := today.Format(constants.DateFormat)
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	out := make([]models.Completion, 0)
	for _, c := range s.completions {
		if _, ok := s.habits[c.HabitID]; !ok {
			continue
		}
		if c.Date == date && c.Completed {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HabitID < out[j].HabitID })
	return out
}

// CompletionRate is the percentage of habits completed today, rounded to
// the nearest integer. It is 0 when there are no habits.
func (s *Store) CompletionRate(today time.Time) int {
	done := len(s.TodayCompletions(today))
	s.stateMu.RLock()
	total := len(s.habits)
	s.stateMu.RUnlock()
	return rate(done, total)
}

func rate(done, total int) int {
	if total == 0 {
		return 0
	}
	return (done*100 + total/2) / total
}

// DaySummary is the completion tally of one calendar day
type DaySummary struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Rate      int    `json:"rate"`
}

// WeeklySummary tallies the seven days ending today, oldest first
func (s *Store) WeeklySummary(today time.Time) []DaySummary {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	total := len(s.habits)
	counts := make(map[string]int)
	for _, c := range s.completions {
		if _, ok := s.habits[c.HabitID]; ok && c.Completed {
			counts[c.Date]++
		}
	}

	out := make([]DaySummary, 0, 7)
	for i := 6; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(constants.DateFormat)
		out = append(out, DaySummary{
			Date:      date,
			Completed: counts[date],
			Total:     total,
			Rate:      rate(counts[date], total),
		})
	}
	return out
}
