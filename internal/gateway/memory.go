package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrUnavailable is the error injected by Memory while it is set offline
var ErrUnavailable = errors.New("remote store unavailable")

// Call describes one request made to a Memory gateway
type Call struct {
	Method     string
	Collection string
	ID         string
	Record     Record
}

// FailFunc decides whether a call should fail. Returning nil lets it through.
type FailFunc func(call Call) error

// Memory is an in-process Gateway. It backs tests and the "memory" remote,
// and can be told to fail calls to simulate an unreachable store.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]map[string]Record // collection -> id -> document
	calls   []Call
	offline bool
	failN   int
	failFn  FailFunc
}

// NewMemory creates an empty in-memory document store
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]Record)}
}

// SetOffline makes every call fail with ErrUnavailable until cleared
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// FailNext makes the next n calls fail with ErrUnavailable
func (m *Memory) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN = n
}

// FailWhen installs a predicate consulted on every call; nil removes it
func (m *Memory) FailWhen(fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFn = fn
}

// Calls returns every call made so far, including failed ones
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Len returns the number of documents in collection
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

// Get returns a copy of a stored document
func (m *Memory) Get(collection, id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, false
	}
	return copyRecord(doc), true
}

// Put stores a document under a fixed id, bypassing failure injection
func (m *Memory) Put(collection, id string, record Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(collection)[id] = copyRecord(record)
}

func (m *Memory) Create(ctx context.Context, collection string, record Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, Call{Method: "create", Collection: collection, Record: record}); err != nil {
		return "", err
	}
	id := uuid.NewString()
	doc := copyRecord(record)
	delete(doc, "id")
	m.bucket(collection)[id] = doc
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, Call{Method: "update", Collection: collection, ID: id, Record: patch}); err != nil {
		return err
	}
	doc, ok := m.docs[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, Call{Method: "delete", Collection: collection, ID: id}); err != nil {
		return err
	}
	if _, ok := m.docs[collection][id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	delete(m.docs[collection], id)
	return nil
}

func (m *Memory) List(ctx context.Context, collection, ownerID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, Call{Method: "list", Collection: collection}); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.docs[collection]))
	for id, doc := range m.docs[collection] {
		if owner, _ := doc[OwnerField].(string); owner == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		doc := copyRecord(m.docs[collection][id])
		doc["id"] = id
		out = append(out, doc)
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.offline {
		return ErrUnavailable
	}
	return nil
}

// check records the call and applies failure injection. Callers hold m.mu.
func (m *Memory) check(ctx context.Context, call Call) error {
	call.Record = copyRecord(call.Record)
	m.calls = append(m.calls, call)
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.offline {
		return ErrUnavailable
	}
	if m.failN > 0 {
		m.failN--
		return ErrUnavailable
	}
	if m.failFn != nil {
		if err := m.failFn(call); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) bucket(collection string) map[string]Record {
	b, ok := m.docs[collection]
	if !ok {
		b = make(map[string]Record)
		m.docs[collection] = b
	}
	return b
}

func copyRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
