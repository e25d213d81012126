package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/pausor/codec"
	"github.com/viant/pausor/internal/clock"
	"github.com/viant/pausor/internal/idgen"
	"github.com/viant/pausor/model"
	"github.com/viant/pausor/model/condition"
	"github.com/viant/pausor/runtime/execution"
	"github.com/viant/pausor/service/messaging"
	qmem "github.com/viant/pausor/service/messaging/memory"
	"github.com/viant/pausor/service/state"
	"github.com/viant/pausor/tracing"
)

// defaultMaxRetries bounds the optimistic-concurrency retry loop; exhausting
// it surfaces ErrTransientConflict to the caller.
const defaultMaxRetries = 3

// Resumer hands a resolved request back to the workflow engine. The approval
// service calls it at most once per request.
type Resumer interface {
	Resume(ctx context.Context, request *Request) error
}

// Result is the typed outcome of a checkpoint evaluation: either the run
// continues immediately or it suspended behind the returned request.
type Result struct {
	Suspended bool       `json:"suspended"`
	RequestID string     `json:"requestId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Service orchestrates the approval lifecycle: suspension, decision
// collection, timeout sweeps and resumption triggering.
type Service struct {
	store       Store
	state       state.Backend
	codec       *codec.Service
	events      messaging.Queue[Event]
	evaluator   *condition.Evaluator
	resumer     Resumer
	snapshotTTL time.Duration
	maxRetries  int
}

// Option customises the approval service.
type Option func(*Service)

// WithCodec overrides the snapshot codec, e.g. to carry registered payload
// types.
func WithCodec(aCodec *codec.Service) Option {
	return func(s *Service) {
		s.codec = aCodec
	}
}

// WithEvents overrides the event queue.
func WithEvents(queue messaging.Queue[Event]) Option {
	return func(s *Service) {
		s.events = queue
	}
}

// WithResumer wires the resumption trigger; without one, approved requests
// stay resolved and their snapshots retained.
func WithResumer(resumer Resumer) Option {
	return func(s *Service) {
		s.resumer = resumer
	}
}

// WithSnapshotTTL bounds snapshot lifetime on backends with native expiry.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.snapshotTTL = ttl
	}
}

// WithMaxRetries overrides the conflict retry budget.
func WithMaxRetries(maxRetries int) Option {
	return func(s *Service) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
	}
}

// New creates an approval service over the supplied request store and
// snapshot backend.
func New(aStore Store, stateBackend state.Backend, options ...Option) *Service {
	ret := &Service{
		store:      aStore,
		state:      stateBackend,
		evaluator:  condition.New(),
		maxRetries: defaultMaxRetries,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.codec == nil {
		ret.codec = codec.New()
	}
	if ret.events == nil {
		ret.events = qmem.NewQueue[Event](qmem.DefaultConfig())
	}
	return ret
}

// Events exposes the lifecycle event queue for fan-out consumers.
func (s *Service) Events() messaging.Queue[Event] { return s.events }

// EvaluateCheckpoint decides whether the run suspends at the checkpoint. When
// the checkpoint condition holds it encodes the execution context, persists
// the snapshot and the pending request, and returns a suspended result; when
// the condition yields false the run continues without side effects.
//
// Write order is snapshot first, request row second; a failed row write rolls
// the snapshot back so no suspension is partially observable.
func (s *Service) EvaluateCheckpoint(ctx context.Context, checkpoint *model.Checkpoint, execCtx *execution.Context, variables map[string]interface{}) (result *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.EvaluateCheckpoint", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	if checkpoint == nil {
		return nil, fmt.Errorf("checkpoint was nil")
	}
	if execCtx == nil {
		return nil, fmt.Errorf("execution context was nil")
	}
	if err := checkpoint.Validate(); err != nil {
		return nil, err
	}
	if checkpoint.Condition != "" {
		active, err := s.evaluator.Evaluate(checkpoint.Condition, variables)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s condition: %w", checkpoint.ID, err)
		}
		if !active {
			return &Result{}, nil
		}
	}

	if _, err := s.store.FindActive(ctx, checkpoint.ID, execCtx.RunID); err == nil {
		return nil, fmt.Errorf("%w: checkpoint %s run %s", ErrDuplicateRequest, checkpoint.ID, execCtx.RunID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: failed to check active requests: %v", ErrBackendUnavailable, err)
	}

	snapshot, err := s.codec.Encode(execCtx)
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	request := &Request{
		ID:                idgen.New(),
		CheckpointID:      checkpoint.ID,
		FlowID:            execCtx.FlowID,
		RunID:             execCtx.RunID,
		NodeID:            execCtx.PausedNodeID,
		Title:             checkpoint.Name,
		Status:            StatusPending,
		Approvers:         append([]string(nil), checkpoint.Approvers...),
		ApprovalsRequired: checkpoint.Quorum(),
		OnTimeout:         checkpoint.OnTimeout,
		EscalateTo:        append([]string(nil), checkpoint.EscalateTo...),
		EscalationTimeout: checkpoint.EscalationDeadline(),
		CreatedAt:         now,
	}
	// expires_at is always now+timeout; a zero timeout makes the request due
	// on the first sweep after creation.
	expiresAt := now.Add(checkpoint.Timeout)
	request.ExpiresAt = &expiresAt

	if err = s.state.Save(ctx, request.ID, snapshot, s.snapshotTTL); err != nil {
		return nil, fmt.Errorf("%w: failed to save snapshot: %v", ErrBackendUnavailable, err)
	}
	if err = s.store.CreateRequest(ctx, request); err != nil {
		_ = s.state.Delete(ctx, request.ID)
		if errors.Is(err, ErrDuplicateRequest) {
			return nil, fmt.Errorf("%w: checkpoint %s run %s", ErrDuplicateRequest, checkpoint.ID, execCtx.RunID)
		}
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrBackendUnavailable, err)
	}
	s.publish(ctx, TopicRequestCreated, request, nil)
	return &Result{Suspended: true, RequestID: request.ID, ExpiresAt: request.ExpiresAt}, nil
}

// GetRequest returns the request by ID.
func (s *Service) GetRequest(ctx context.Context, id string) (*Request, error) {
	request, err := s.store.GetRequest(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return request, err
}

// ListDecisions returns all recorded decisions for a request, oldest first.
func (s *Service) ListDecisions(ctx context.Context, requestID string) ([]*Decision, error) {
	return s.store.ListDecisions(ctx, requestID)
}

// PendingFor lists pending requests the supplied approver is eligible to
// decide, optionally narrowed to one flow.
func (s *Service) PendingFor(ctx context.Context, approver string, roles []string, flowID string) ([]*Request, error) {
	pending, err := s.store.ListPending(ctx, Filter{FlowID: flowID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if approver == "" {
		return pending, nil
	}
	ret := make([]*Request, 0, len(pending))
	for _, request := range pending {
		if model.Eligible(request.Approvers, approver, roles) {
			ret = append(ret, request)
		}
	}
	return ret, nil
}

// SubmitDecision records one approver's vote and applies the resulting
// transition. Approve votes count towards the quorum, a reject vote resolves
// the request immediately, request_changes votes are recorded without
// affecting the state machine. The transition is linearized per request via
// the store's conditional update; after the retry budget is exhausted the
// caller gets ErrTransientConflict.
func (s *Service) SubmitDecision(ctx context.Context, requestID, approver string, roles []string, kind DecisionKind, comment string) (ret *Decision, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.SubmitDecision", "INTERNAL")
	span.WithAttributes(map[string]string{"request.id": requestID, "decision.kind": string(kind)})
	defer func() { tracing.EndSpan(span, err) }()
	switch kind {
	case DecisionApprove, DecisionReject, DecisionRequestChanges:
	default:
		return nil, fmt.Errorf("unsupported decision kind %q", kind)
	}
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		request, err := s.GetRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if request.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, requestID, request.Status)
		}
		if !model.Eligible(request.Approvers, approver, roles) {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnauthorized, approver, requestID)
		}

		now := clock.Now()
		decision := &Decision{
			ID:        idgen.New(),
			RequestID: requestID,
			Approver:  approver,
			Kind:      kind,
			Comment:   comment,
			CreatedAt: now,
		}
		switch kind {
		case DecisionApprove:
			request.ApprovalsReceived++
			if request.ApprovalsReceived >= request.Quorum() {
				s.resolve(request, StatusApproved, approver, comment, now)
			}
		case DecisionReject:
			s.resolve(request, StatusRejected, approver, comment, now)
		}

		err = s.store.AddDecision(ctx, decision, request)
		switch {
		case err == nil:
		case errors.Is(err, ErrConflict):
			continue
		case errors.Is(err, ErrDuplicateVote):
			return nil, fmt.Errorf("%w: %s already voted on %s", ErrDuplicateVote, approver, requestID)
		case errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
		default:
			return nil, fmt.Errorf("%w: failed to record decision: %v", ErrBackendUnavailable, err)
		}

		s.publish(ctx, TopicDecisionCreated, request, decision)
		switch request.Status {
		case StatusApproved:
			s.publish(ctx, TopicRequestApproved, request, decision)
			if err = s.triggerResume(ctx, request); err != nil {
				return decision, err
			}
		case StatusRejected:
			_ = s.state.Delete(ctx, request.ID)
			s.publish(ctx, TopicRequestRejected, request, decision)
		}
		return decision, nil
	}
	return nil, fmt.Errorf("%w: decision on %s", ErrTransientConflict, requestID)
}

// CancelRequest cancels a pending request; losers of a cancel/decide race
// observe ErrAlreadyResolved.
func (s *Service) CancelRequest(ctx context.Context, requestID, by, comment string) (ret *Request, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.CancelRequest", "INTERNAL")
	span.WithAttributes(map[string]string{"request.id": requestID})
	defer func() { tracing.EndSpan(span, err) }()
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		request, err := s.GetRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if request.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, requestID, request.Status)
		}
		s.resolve(request, StatusCancelled, by, comment, clock.Now())
		err = s.store.UpdateRequest(ctx, request)
		switch {
		case err == nil:
			_ = s.state.Delete(ctx, request.ID)
			s.publish(ctx, TopicRequestCancelled, request, nil)
			return request, nil
		case errors.Is(err, ErrConflict):
			continue
		case errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
		default:
			return nil, fmt.Errorf("%w: failed to cancel request: %v", ErrBackendUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%w: cancel on %s", ErrTransientConflict, requestID)
}

func (s *Service) resolve(request *Request, status Status, by, comment string, at time.Time) {
	request.Status = status
	request.ResolvedBy = by
	request.Comment = comment
	resolvedAt := at
	request.ResolvedAt = &resolvedAt
}

// triggerResume hands an approved request to the engine. The caller owns the
// terminal transition, so this runs at most once per request.
func (s *Service) triggerResume(ctx context.Context, request *Request) error {
	if s.resumer == nil {
		return nil
	}
	if err := s.resumer.Resume(ctx, request); err != nil {
		s.markResumeFailed(ctx, request)
		return fmt.Errorf("%w: %s: %v", ErrResumeFailed, request.ID, err)
	}
	return nil
}

// markResumeFailed records the resume_failed sub-status so operators can
// retry; the snapshot stays in the state backend.
func (s *Service) markResumeFailed(ctx context.Context, request *Request) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, err := s.store.GetRequest(ctx, request.ID)
		if err != nil {
			return
		}
		current.SubStatus = SubStatusResumeFailed
		err = s.store.UpdateRequest(ctx, current)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err == nil {
			request.SubStatus = SubStatusResumeFailed
			s.publish(ctx, TopicRequestResumeFailed, current, nil)
		}
		return
	}
}

func (s *Service) publish(ctx context.Context, topic string, request *Request, decision *Decision) {
	event := &Event{
		Topic:     topic,
		FlowID:    request.FlowID,
		Request:   request.Clone(),
		Decision:  decision,
		CreatedAt: clock.Now(),
	}
	_ = s.events.Publish(ctx, event)
}
