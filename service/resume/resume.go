// Package resume implements the resumption trigger: it rehydrates the
// execution context of a resolved request, injects the approval outcome and
// hands the context back to the workflow engine. The snapshot is deleted only
// after the engine accepted the handoff, so a rejected handoff can be retried
// by an operator.
package resume

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/pausor/codec"
	"github.com/viant/pausor/runtime/execution"
	"github.com/viant/pausor/service/approval"
	"github.com/viant/pausor/service/state"
)

// Engine receives the rehydrated execution context and continues the run. A
// non-nil error means the handoff was not accepted.
type Engine interface {
	Resume(ctx context.Context, execCtx *execution.Context) error
}

// Service loads, decodes and hands off snapshots of resolved requests.
type Service struct {
	state  state.Backend
	codec  *codec.Service
	engine Engine
}

// New creates a resumption service.
func New(stateBackend state.Backend, aCodec *codec.Service, engine Engine) *Service {
	if aCodec == nil {
		aCodec = codec.New()
	}
	return &Service{state: stateBackend, codec: aCodec, engine: engine}
}

// Resume rehydrates the request's execution context and hands it to the
// engine with the approval outcome injected at the paused node.
func (s *Service) Resume(ctx context.Context, request *approval.Request) error {
	if request == nil {
		return fmt.Errorf("request was nil")
	}
	data, err := s.state.Load(ctx, request.ID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("snapshot for request %s not found", request.ID)
		}
		return fmt.Errorf("failed to load snapshot %s: %w", request.ID, err)
	}
	execCtx, err := s.codec.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", request.ID, err)
	}
	outcome := &execution.Outcome{
		NodeID:     execCtx.PausedNodeID,
		Status:     string(request.Status),
		ResolvedBy: request.ResolvedBy,
		Comment:    request.Comment,
	}
	if request.ResolvedAt != nil {
		outcome.ResolvedAt = *request.ResolvedAt
	}
	execCtx.Outcome = outcome
	if err = s.engine.Resume(ctx, execCtx); err != nil {
		return fmt.Errorf("engine rejected handoff for %s: %w", request.ID, err)
	}
	// handoff accepted; snapshot removal is best effort from here
	_ = s.state.Delete(ctx, request.ID)
	return nil
}

var _ approval.Resumer = (*Service)(nil)
