// Package state defines the pluggable snapshot storage contract. A backend
// stores opaque snapshot bytes keyed by approval request ID; the engine never
// inspects the payload.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound - no snapshot stored under the supplied ID, or the snapshot's
// TTL elapsed.
var ErrNotFound = errors.New("snapshot not found")

// Backend persists execution snapshots. A ttl of zero means the snapshot
// never expires on its own.
type Backend interface {
	// Save stores the snapshot, replacing any previous value.
	Save(ctx context.Context, id string, snapshot []byte, ttl time.Duration) error

	// Load returns the stored snapshot or ErrNotFound.
	Load(ctx context.Context, id string) ([]byte, error)

	// Delete removes the snapshot; deleting a missing snapshot is not an
	// error.
	Delete(ctx context.Context, id string) error

	// ExtendTTL rearms the snapshot's expiry, e.g. on escalation. It fails
	// with ErrNotFound when nothing is stored under the ID.
	ExtendTTL(ctx context.Context, id string, ttl time.Duration) error
}

// Lister is implemented by backends that can enumerate stored snapshot IDs;
// the reconciliation sweep uses it to find orphans.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}
