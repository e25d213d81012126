package approval

import (
	"context"
	"errors"
	"time"
)

// ErrConflict - a conditional update lost against a concurrent writer. The
// service re-reads and retries; it never reaches API callers directly (they
// see ErrTransientConflict once the retry budget runs out).
var ErrConflict = errors.New("version conflict")

// Filter narrows ListPending results.
type Filter struct {
	// FlowID limits results to one workflow when non-empty.
	FlowID string
	// DueBefore selects requests whose deadline passed; nil means no
	// deadline filter.
	DueBefore *time.Time
}

// Store persists approval requests and their decisions. Implementations
// provide per-request linearizability through version-guarded conditional
// updates; see store/memory and store/gorm.
type Store interface {
	// CreateRequest persists a new request; it fails with
	// ErrDuplicateRequest when a non-terminal request already exists for the
	// same (checkpoint, run) pair.
	CreateRequest(ctx context.Context, request *Request) error

	// GetRequest returns the request by ID or ErrNotFound.
	GetRequest(ctx context.Context, id string) (*Request, error)

	// FindActive returns the non-terminal request for (checkpoint, run), or
	// ErrNotFound.
	FindActive(ctx context.Context, checkpointID, runID string) (*Request, error)

	// ListPending returns pending requests matching the filter, oldest
	// first.
	ListPending(ctx context.Context, filter Filter) ([]*Request, error)

	// UpdateRequest persists the mutated request conditionally: the write
	// applies only while the stored version equals request.Version, and
	// increments the version on success. A lost race yields ErrConflict.
	UpdateRequest(ctx context.Context, request *Request) error

	// AddDecision atomically appends the decision and applies the
	// conditional request update in one transaction. It fails with
	// ErrDuplicateVote when the approver already voted and with ErrConflict
	// when the request version moved.
	AddDecision(ctx context.Context, decision *Decision, request *Request) error

	// ListDecisions returns all decisions for a request, oldest first.
	ListDecisions(ctx context.Context, requestID string) ([]*Decision, error)
}
