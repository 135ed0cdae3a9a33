// Package netstatus tracks whether the remote store is reachable.
package netstatus

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/logger"
)

// Monitor holds the current online state and fans out transitions to subscribers
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
	log    *log.Logger
}

// New creates a Monitor with the given initial state
func New(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[int]chan bool),
		log:    logger.With("netstatus"),
	}
}

// IsOnline reports the last known state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a new state. Subscribers are notified only when it changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	m.log.Info("network status changed", "online", online)
	for _, ch := range m.subs {
		// Drop the stale value so the newest state always fits.
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Subscribe returns a channel receiving every state transition and a func
// that stops delivery. The channel holds only the most recent transition.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Probe pings p every interval and feeds the result into Set until ctx is done.
// The first probe runs immediately.
func (m *Monitor) Probe(ctx context.Context, p gateway.Pinger, interval time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := p.Ping(pctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			m.log.Debug("probe failed", "err", err)
		}
		m.Set(err == nil)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
