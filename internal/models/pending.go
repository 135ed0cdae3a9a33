package models

import "time"

// Operation identifies the kind of mutation a pending write replays
type Operation string

const (
	OpAdd    Operation = "add"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpToggle Operation = "toggle"
)

// Collection names a remote document collection
type Collection string

const (
	CollectionHabits      Collection = "habits"
	CollectionCompletions Collection = "completions"
)

// PendingWrite is a mutation that failed to reach the remote store and awaits retry
type PendingWrite struct {
	ID         string     `json:"id"`
	Operation  Operation  `json:"operation"`
	Collection Collection `json:"collection"`
	Payload    Record     `json:"payload"`
	Timestamp  time.Time  `json:"timestamp"`
	RetryCount int        `json:"retry_count"`
}

// QueueState is the durable portion of the offline queue
type QueueState struct {
	Pending      []PendingWrite `json:"pending_writes"`
	Failed       []PendingWrite `json:"failed_writes"`
	LastSyncTime *time.Time     `json:"last_sync_time,omitempty"`
	// CycleStartedAt is set while a sync cycle runs; a value found at startup
	// means the previous process died mid-cycle.
	CycleStartedAt *time.Time `json:"cycle_started_at,omitempty"`
}

// Clone returns a copy of s whose slices can be mutated independently
func (s QueueState) Clone() QueueState {
	out := QueueState{
		Pending: append([]PendingWrite(nil), s.Pending...),
		Failed:  append([]PendingWrite(nil), s.Failed...),
	}
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	if s.CycleStartedAt != nil {
		t := *s.CycleStartedAt
		out.CycleStartedAt = &t
	}
	return out
}
