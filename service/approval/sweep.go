package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/pausor/internal/clock"
	"github.com/viant/pausor/model"
	"github.com/viant/pausor/service/state"
)

// systemActor marks transitions applied by the timeout sweep rather than a
// human decision.
const systemActor = "system:timeout"

// ExpireDue applies the timeout policy to every pending request whose
// deadline passed, and returns how many requests it transitioned. A request
// whose snapshot backend cannot be probed is skipped until the next pass, so
// an outage never produces a terminal transition with an unreachable
// snapshot.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := clock.Now()
	due, err := s.store.ListPending(ctx, Filter{DueBefore: &now})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	processed := 0
	for _, request := range due {
		if err := s.expireOne(ctx, request, now); err != nil {
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *Service) expireOne(ctx context.Context, request *Request, now time.Time) error {
	if _, err := s.state.Load(ctx, request.ID); err != nil && !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("%w: snapshot probe for %s: %v", ErrBackendUnavailable, request.ID, err)
	}

	policy := request.OnTimeout
	if policy == model.TimeoutEscalate && !request.Escalated {
		return s.escalate(ctx, request, now)
	}

	switch policy {
	case model.TimeoutApprove:
		s.resolve(request, StatusApproved, systemActor, "", now)
	case model.TimeoutReject, model.TimeoutEscalate:
		// a second expiry after escalation always rejects
		s.resolve(request, StatusRejected, systemActor, "", now)
	default:
		s.resolve(request, StatusExpired, systemActor, "", now)
	}
	if err := s.store.UpdateRequest(ctx, request); err != nil {
		// a concurrent decision won the race; nothing left to do here
		return err
	}
	s.publish(ctx, TopicRequestExpired, request, nil)
	switch request.Status {
	case StatusApproved:
		s.publish(ctx, TopicRequestApproved, request, nil)
		return s.triggerResume(ctx, request)
	default:
		_ = s.state.Delete(ctx, request.ID)
		if request.Status == StatusRejected {
			s.publish(ctx, TopicRequestRejected, request, nil)
		}
	}
	return nil
}

// escalate re-arms the request exactly once with the escalation approver set
// and a fresh deadline.
func (s *Service) escalate(ctx context.Context, request *Request, now time.Time) error {
	request.Escalated = true
	if len(request.EscalateTo) > 0 {
		request.Approvers = append([]string(nil), request.EscalateTo...)
	}
	deadline := now.Add(request.EscalationTimeout)
	request.ExpiresAt = &deadline
	if err := s.store.UpdateRequest(ctx, request); err != nil {
		return err
	}
	if s.snapshotTTL > 0 {
		_ = s.state.ExtendTTL(ctx, request.ID, s.snapshotTTL)
	}
	s.publish(ctx, TopicRequestExpired, request, nil)
	s.publish(ctx, TopicRequestEscalated, request, nil)
	return nil
}

// ReconcileOrphans deletes snapshots left behind by a crash between the
// snapshot write and the request-row write, or by a terminal transition whose
// snapshot cleanup did not complete. Snapshots of requests awaiting a resume
// retry are kept. The backend must implement state.Lister; otherwise the
// sweep reports zero work.
func (s *Service) ReconcileOrphans(ctx context.Context) (int, error) {
	lister, ok := s.state.(state.Lister)
	if !ok {
		return 0, nil
	}
	ids, err := lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	removed := 0
	for _, id := range ids {
		request, err := s.store.GetRequest(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			continue
		case request.Status == StatusRejected || request.Status == StatusExpired || request.Status == StatusCancelled:
			// terminal without resumption; inline cleanup did not finish.
			// Approved snapshots are never reclaimed here - the resume path
			// owns their deletion.
		default:
			continue
		}
		if err := s.state.Delete(ctx, id); err == nil {
			removed++
		}
	}
	return removed, nil
}

// RunSweeps starts a goroutine applying ExpireDue and ReconcileOrphans every
// interval. It returns stop() - call it (or cancel ctx) to exit.
func RunSweeps(ctx context.Context, service *Service, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_, _ = service.ExpireDue(ctx)
				_, _ = service.ReconcileOrphans(ctx)
			}
		}
	}()
	return func() { close(done) }
}
