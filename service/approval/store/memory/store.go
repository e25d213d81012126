// Package memory provides the in-memory approval store used by tests and
// single-process deployments. It honours the same conditional-update contract
// as the relational store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/pausor/service/approval"
)

// Store is a mutex-guarded approval store.
type Store struct {
	mux       sync.RWMutex
	requests  map[string]*approval.Request
	decisions map[string][]*approval.Decision
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		requests:  make(map[string]*approval.Request),
		decisions: make(map[string][]*approval.Decision),
	}
}

// CreateRequest persists a new request.
func (s *Store) CreateRequest(ctx context.Context, request *approval.Request) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, candidate := range s.requests {
		if candidate.CheckpointID == request.CheckpointID && candidate.RunID == request.RunID && !candidate.Status.Terminal() {
			return approval.ErrDuplicateRequest
		}
	}
	s.requests[request.ID] = request.Clone()
	return nil
}

// GetRequest returns a copy of the request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*approval.Request, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return request.Clone(), nil
}

// FindActive returns the non-terminal request for (checkpoint, run).
func (s *Store) FindActive(ctx context.Context, checkpointID, runID string) (*approval.Request, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	for _, candidate := range s.requests {
		if candidate.CheckpointID == checkpointID && candidate.RunID == runID && !candidate.Status.Terminal() {
			return candidate.Clone(), nil
		}
	}
	return nil, approval.ErrNotFound
}

// ListPending returns pending requests matching the filter, oldest first.
func (s *Store) ListPending(ctx context.Context, filter approval.Filter) ([]*approval.Request, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var ret []*approval.Request
	for _, candidate := range s.requests {
		if candidate.Status != approval.StatusPending {
			continue
		}
		if filter.FlowID != "" && candidate.FlowID != filter.FlowID {
			continue
		}
		if filter.DueBefore != nil {
			if candidate.ExpiresAt == nil || !candidate.ExpiresAt.Before(*filter.DueBefore) {
				continue
			}
		}
		ret = append(ret, candidate.Clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.Before(ret[j].CreatedAt) })
	return ret, nil
}

// UpdateRequest applies a version-guarded update.
func (s *Store) UpdateRequest(ctx context.Context, request *approval.Request) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.updateLocked(request)
}

func (s *Store) updateLocked(request *approval.Request) error {
	current, ok := s.requests[request.ID]
	if !ok {
		return approval.ErrNotFound
	}
	if current.Version != request.Version {
		return approval.ErrConflict
	}
	request.Version++
	s.requests[request.ID] = request.Clone()
	return nil
}

// AddDecision appends the decision and applies the request update atomically.
func (s *Store) AddDecision(ctx context.Context, decision *approval.Decision, request *approval.Request) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, existing := range s.decisions[decision.RequestID] {
		if existing.Approver == decision.Approver {
			return approval.ErrDuplicateVote
		}
	}
	if err := s.updateLocked(request); err != nil {
		return err
	}
	copied := *decision
	s.decisions[decision.RequestID] = append(s.decisions[decision.RequestID], &copied)
	return nil
}

// ListDecisions returns all decisions for a request, oldest first.
func (s *Store) ListDecisions(ctx context.Context, requestID string) ([]*approval.Decision, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	items := s.decisions[requestID]
	ret := make([]*approval.Decision, 0, len(items))
	for _, item := range items {
		copied := *item
		ret = append(ret, &copied)
	}
	return ret, nil
}

var _ approval.Store = (*Store)(nil)
