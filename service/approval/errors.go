package approval

import "errors"

// Error kinds surfaced by the approval service. Callers classify with
// errors.Is; the gateway maps them onto HTTP statuses.
var (
	// ErrNotFound - no request with the supplied ID.
	ErrNotFound = errors.New("approval request not found")
	// ErrAlreadyResolved - the request reached a terminal status before the
	// operation could apply.
	ErrAlreadyResolved = errors.New("approval request already resolved")
	// ErrUnauthorized - the approver is not on the request allow-list.
	ErrUnauthorized = errors.New("approver not authorized")
	// ErrDuplicateVote - the approver already voted on this request.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrDuplicateRequest - a non-terminal request already exists for the
	// (checkpoint, run) pair.
	ErrDuplicateRequest = errors.New("duplicate approval request")
	// ErrTransientConflict - concurrent writers exhausted the bounded retry
	// budget; the operation is safe to retry.
	ErrTransientConflict = errors.New("transient conflict")
	// ErrResumeFailed - the request resolved but the engine rejected the
	// resumption handoff; the snapshot is retained.
	ErrResumeFailed = errors.New("resume failed")
	// ErrBackendUnavailable - a storage backend could not be reached; no
	// partial transition was applied.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
