// Package syncer drains the offline write queue into the remote store.
//
// A cycle takes a snapshot of the pending queue, attempts every write
// concurrently and settles each outcome independently: successes leave the
// queue, failures go to the failed queue until their retry budget is spent,
// after which they are discarded and reported as lost.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/habitsync/internal/constants"
	apperrors "github.com/julianstephens/habitsync/internal/errors"
	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/queue"
)

var (
	// ErrOffline is returned when a sync is requested without connectivity
	ErrOffline = errors.New("offline")
	// ErrSyncInProgress is returned when a cycle is already running
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrMalformedWrite marks a queued write that can never be dispatched
	ErrMalformedWrite = errors.New("malformed pending write")
)

// Network reports connectivity and its transitions
type Network interface {
	IsOnline() bool
	Subscribe() (<-chan bool, func())
}

// Applier folds a write that reached the remote store into local state
type Applier interface {
	ApplySynced(ctx context.Context, w models.PendingWrite, remoteID string) error
}

// LossReporter is told about writes discarded after exhausting their retries
type LossReporter interface {
	ReportLoss(w models.PendingWrite, cause error) error
}

// Status is the observable state of the engine
type Status struct {
	IsSyncing         bool       `json:"is_syncing"`
	IsOnline          bool       `json:"is_online"`
	PendingWriteCount int        `json:"pending_write_count"`
	LastSyncTime      *time.Time `json:"last_sync_time,omitempty"`
}

// Result tallies one sync cycle
type Result struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Discarded int `json:"discarded"`
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source for lastSyncTime and cycle markers
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithInterval sets the period of the Run ticker
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithApplier registers the local store updated after each successful write
func WithApplier(a Applier) Option {
	return func(e *Engine) { e.applier = a }
}

// WithLossReporter registers who is told about discarded writes
func WithLossReporter(r LossReporter) Option {
	return func(e *Engine) { e.loss = r }
}

// WithLogger replaces the component logger
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the single-flight sync loop
type Engine struct {
	queue    *queue.Queue
	gw       gateway.Gateway
	net      Network
	applier  Applier
	loss     LossReporter
	now      func() time.Time
	interval time.Duration
	log      *log.Logger

	mu      sync.Mutex
	syncing bool
	subs    map[int]chan Status
	nextSub int
}

// New creates an idle engine. A cycle marker left in the queue by a process
// that died mid-sync is logged and cleared.
func New(q *queue.Queue, gw gateway.Gateway, net Network, opts ...Option) *Engine {
	e := &Engine{
		queue:    q,
		gw:       gw,
		net:      net,
		now:      time.Now,
		interval: constants.DefaultSyncInterval,
		log:      logger.With("syncer"),
		subs:     make(map[int]chan Status),
	}
	for _, opt := range opts {
		opt(e)
	}

	if started := q.CycleStartedAt(); started != nil {
		e.log.Warn("previous sync cycle did not finish; resetting", "started_at", started.Format(time.RFC3339), "pending", q.Count())
		if err := q.EndCycle(context.Background()); err != nil {
			e.log.Error("failed to clear sync cycle marker", "err", err)
		}
	}
	return e
}

// Status returns a snapshot of the observable state
func (e *Engine) Status() Status {
	e.mu.Lock()
	syncing := e.syncing
	e.mu.Unlock()
	return Status{
		IsSyncing:         syncing,
		IsOnline:          e.net.IsOnline(),
		PendingWriteCount: e.queue.Count(),
		LastSyncTime:      e.queue.LastSyncTime(),
	}
}

// Subscribe returns a channel receiving status changes and a func that stops
// delivery. Slow readers only see the latest status.
func (e *Engine) Subscribe() (<-chan Status, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan Status, 1)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

func (e *Engine) notify() {
	st := e.Status()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// ForceSyncNow runs a cycle immediately, outside the timer
func (e *Engine) ForceSyncNow(ctx context.Context) (Result, error) {
	return e.Sync(ctx)
}

// Sync runs one cycle. It returns ErrOffline without connectivity and
// ErrSyncInProgress when another cycle is running. An empty queue is a no-op.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if !e.net.IsOnline() {
		return Result{}, ErrOffline
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return Result{}, ErrSyncInProgress
	}
	if e.queue.Count() == 0 {
		e.mu.Unlock()
		return Result{}, nil
	}
	e.syncing = true
	e.mu.Unlock()
	e.notify()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
		e.notify()
	}()

	return e.cycle(ctx)
}

type outcome struct {
	remoteID string
	err      error
}

func (e *Engine) cycle(ctx context.Context) (Result, error) {
	start := e.now()
	if err := e.queue.BeginCycle(ctx, start); err != nil {
		return Result{}, err
	}
	defer func() {
		if err := e.queue.EndCycle(context.WithoutCancel(ctx)); err != nil {
			e.log.Error("failed to clear sync cycle marker", "err", err)
		}
	}()

	retried, err := e.queue.RetryAllFailed(ctx)
	if err != nil {
		return Result{}, err
	}
	batch := e.queue.Pending()
	e.log.Debug("sync cycle started", "writes", len(batch), "retried", retried)

	outcomes := make([]outcome, len(batch))
	var wg sync.WaitGroup
	for i, w := range batch {
		wg.Add(1)
		go func(i int, w models.PendingWrite) {
			defer wg.Done()
			id, err := e.dispatch(ctx, w)
			outcomes[i] = outcome{remoteID: id, err: err}
		}(i, w)
	}
	wg.Wait()

	// Settling must finish even if the caller gave up mid-cycle.
	settle := context.WithoutCancel(ctx)
	res := Result{Attempted: len(batch)}
	var errs []error
	for i, w := range batch {
		if err := e.settle(settle, w, outcomes[i], &res); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.queue.SetLastSyncTime(settle, e.now()); err != nil {
		errs = append(errs, err)
	}
	e.log.Debug("sync cycle finished",
		"attempted", res.Attempted, "succeeded", res.Succeeded,
		"failed", res.Failed, "discarded", res.Discarded,
		"took", e.now().Sub(start))
	return res, errors.Join(errs...)
}

func (e *Engine) settle(ctx context.Context, w models.PendingWrite, o outcome, res *Result) error {
	if o.err == nil {
		res.Succeeded++
		// the remote already holds the write, so it is applied locally even
		// when the removal could not be persisted
		removeErr := e.queue.Remove(ctx, w.ID)
		if e.applier != nil {
			if err := e.applier.ApplySynced(ctx, w, o.remoteID); err != nil {
				e.log.Warn("failed to apply synced write locally", "write", w.ID, "err", err)
			}
		}
		return removeErr
	}

	attempts := w.RetryCount + 1
	if attempts < constants.MaxRetries {
		res.Failed++
		e.log.Warn("write failed, will retry",
			"write", w.ID, "op", w.Operation, "collection", w.Collection,
			"retry_count", attempts, "kind", apperrors.Classify(o.err), "err", o.err)
		_, err := e.queue.MoveToFailed(ctx, w.ID)
		return err
	}

	res.Discarded++
	e.log.Error("write discarded after max retries",
		"write", w.ID, "op", w.Operation, "collection", w.Collection,
		"retry_count", attempts, "kind", apperrors.Classify(o.err), "err", o.err)
	discardErr := e.queue.Discard(ctx, w.ID)
	if e.loss != nil {
		lost := w
		lost.RetryCount = attempts
		if err := e.loss.ReportLoss(lost, o.err); err != nil {
			e.log.Warn("failed to report lost write", "write", w.ID, "err", err)
		}
	}
	return discardErr
}

// dispatch replays one write against the gateway and returns the id the
// store assigned for adds
func (e *Engine) dispatch(ctx context.Context, w models.PendingWrite) (string, error) {
	collection := string(w.Collection)
	if w.Operation == models.OpAdd {
		return e.gw.Create(ctx, collection, w.Payload)
	}

	id, ok := w.Payload.ID()
	if !ok {
		return "", fmt.Errorf("%w: %s write %s has no id", ErrMalformedWrite, w.Operation, w.ID)
	}
	switch w.Operation {
	case models.OpUpdate:
		return id, e.gw.Update(ctx, collection, id, w.Payload.Without("id"))
	case models.OpDelete:
		return id, e.gw.Delete(ctx, collection, id)
	case models.OpToggle:
		return id, e.gw.Update(ctx, collection, id, models.Record{"completed": w.Payload["completed"]})
	default:
		return "", fmt.Errorf("%w: unknown operation %q", ErrMalformedWrite, w.Operation)
	}
}

// Run syncs on every tick and on every offline-to-online transition until
// ctx is done. Ticks while offline are skipped.
func (e *Engine) Run(ctx context.Context) error {
	transitions, unsubscribe := e.net.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("sync loop started", "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.net.IsOnline() {
				e.trigger(ctx, "timer")
			}
		case online, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if online {
				e.trigger(ctx, "online")
			}
		}
	}
}

func (e *Engine) trigger(ctx context.Context, reason string) {
	res, err := e.Sync(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline):
		e.log.Debug("sync skipped", "reason", reason, "err", err)
	case err != nil:
		e.log.Error("sync cycle failed", "reason", reason, "err", err)
	case res.Attempted > 0:
		e.log.Info("sync cycle complete", "reason", reason, "succeeded", res.Succeeded, "failed", res.Failed, "discarded", res.Discarded)
	}
}
