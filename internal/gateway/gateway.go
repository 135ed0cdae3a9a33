// Package gateway defines the remote document store the sync layer writes to.
//
// Failure is binary: a call either succeeds or returns an error. The sync layer
// never inspects error kinds to decide whether to retry.
package gateway

import (
	"context"
	"errors"

	"github.com/julianstephens/habitsync/internal/models"
)

// Record is a schemaless remote document
type Record = models.Record

// ErrNotFound is returned when a document id does not exist in a collection
var ErrNotFound = errors.New("document not found")

// OwnerField is the document field List filters on
const OwnerField = "owner_id"

// Gateway is the remote document store.
type Gateway interface {
	// Create stores record in collection and returns the id assigned by the store.
	Create(ctx context.Context, collection string, record Record) (string, error)
	// Update merges patch into the document with the given id.
	Update(ctx context.Context, collection, id string, patch Record) error
	// Delete removes the document with the given id.
	Delete(ctx context.Context, collection, id string) error
	// List returns every document in collection owned by ownerID. Each
	// returned record carries its id under "id".
	List(ctx context.Context, collection, ownerID string) ([]Record, error)
}

// Pinger is implemented by gateways that can cheaply check reachability
type Pinger interface {
	Ping(ctx context.Context) error
}
