package approval_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/pausor/internal/clock"
	"github.com/viant/pausor/model"
	"github.com/viant/pausor/service/approval"
	"github.com/viant/pausor/service/state"
)

func frozenClock(t *testing.T) func(time.Duration) {
	t.Helper()
	now := time.Now()
	clock.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { clock.NowFunc = time.Now })
	return func(delta time.Duration) { now = now.Add(delta) }
}

func timedGate(policy model.TimeoutPolicy) *model.Checkpoint {
	checkpoint := deployGate(1)
	checkpoint.Timeout = time.Minute
	checkpoint.OnTimeout = policy
	return checkpoint
}

func TestService_ExpireDue_Policies(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		description    string
		policy         model.TimeoutPolicy
		expectStatus   approval.Status
		expectResumes  int
		expectSnapshot bool
	}{
		{description: "approve policy resumes", policy: model.TimeoutApprove, expectStatus: approval.StatusApproved, expectResumes: 1, expectSnapshot: true},
		{description: "reject policy discards", policy: model.TimeoutReject, expectStatus: approval.StatusRejected},
		{description: "no policy expires", policy: "", expectStatus: approval.StatusExpired},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			advance := frozenClock(t)
			f := newFixture(t)
			request := suspend(t, f, timedGate(testCase.policy), "run-1")

			// nothing due yet
			processed, err := f.service.ExpireDue(ctx)
			assert.NoError(t, err)
			assert.Equal(t, 0, processed)

			advance(2 * time.Minute)
			processed, err = f.service.ExpireDue(ctx)
			assert.NoError(t, err)
			assert.Equal(t, 1, processed)

			current, _ := f.service.GetRequest(ctx, request.ID)
			assert.Equal(t, testCase.expectStatus, current.Status)
			assert.Equal(t, approval.SystemActor, current.ResolvedBy)
			assert.Equal(t, testCase.expectResumes, f.resumer.count())
			_, err = f.state.Load(ctx, request.ID)
			if testCase.expectSnapshot {
				// approved handoff is owned by the resumer; the fake keeps it
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, state.ErrNotFound)
			}

			// the sweep is idempotent once resolved
			processed, err = f.service.ExpireDue(ctx)
			assert.NoError(t, err)
			assert.Equal(t, 0, processed)
		})
	}
}

func TestService_ExpireDue_ZeroTimeout(t *testing.T) {
	ctx := context.Background()
	advance := frozenClock(t)
	f := newFixture(t)

	checkpoint := timedGate(model.TimeoutReject)
	checkpoint.Timeout = 0
	request := suspend(t, f, checkpoint, "run-1")

	// expires_at == created_at, so the request is due on the very first sweep
	advance(time.Millisecond)
	processed, err := f.service.ExpireDue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, processed)

	current, _ := f.service.GetRequest(ctx, request.ID)
	assert.Equal(t, approval.StatusRejected, current.Status)
	_, err = f.state.Load(ctx, request.ID)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestService_ExpireDue_EscalatesOnce(t *testing.T) {
	ctx := context.Background()
	advance := frozenClock(t)
	f := newFixture(t)

	checkpoint := timedGate(model.TimeoutEscalate)
	checkpoint.EscalateTo = []string{"user:cto"}
	checkpoint.EscalationTimeout = 10 * time.Minute
	request := suspend(t, f, checkpoint, "run-1")

	// first expiry re-arms with the escalation approver set
	advance(2 * time.Minute)
	processed, err := f.service.ExpireDue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, processed)

	current, _ := f.service.GetRequest(ctx, request.ID)
	assert.Equal(t, approval.StatusPending, current.Status)
	assert.True(t, current.Escalated)
	assert.Equal(t, []string{"user:cto"}, current.Approvers)
	assert.True(t, current.ExpiresAt.After(clock.Now()))

	// the original approver lost eligibility
	_, err = f.service.SubmitDecision(ctx, request.ID, "alice", nil, approval.DecisionApprove, "")
	assert.ErrorIs(t, err, approval.ErrUnauthorized)

	// the escalated approver can still resolve it
	// (but here we let the second deadline pass instead)
	advance(time.Hour)
	processed, err = f.service.ExpireDue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, processed)

	current, _ = f.service.GetRequest(ctx, request.ID)
	assert.Equal(t, approval.StatusRejected, current.Status)
	_, err = f.state.Load(ctx, request.ID)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestService_ExpireDue_EscalatedDecision(t *testing.T) {
	ctx := context.Background()
	advance := frozenClock(t)
	f := newFixture(t)

	checkpoint := timedGate(model.TimeoutEscalate)
	checkpoint.EscalateTo = []string{"user:cto"}
	request := suspend(t, f, checkpoint, "run-1")

	advance(2 * time.Minute)
	_, err := f.service.ExpireDue(ctx)
	assert.NoError(t, err)

	_, err = f.service.SubmitDecision(ctx, request.ID, "cto", nil, approval.DecisionApprove, "")
	assert.NoError(t, err)
	current, _ := f.service.GetRequest(ctx, request.ID)
	assert.Equal(t, approval.StatusApproved, current.Status)
	assert.Equal(t, 1, f.resumer.count())
}

type flakyBackend struct {
	state.Backend
	failLoad bool
}

func (b *flakyBackend) Load(ctx context.Context, id string) ([]byte, error) {
	if b.failLoad {
		return nil, fmt.Errorf("connection refused")
	}
	return b.Backend.Load(ctx, id)
}

func TestService_ExpireDue_BackendUnavailable(t *testing.T) {
	ctx := context.Background()
	advance := frozenClock(t)

	f := newFixture(t)
	flaky := &flakyBackend{Backend: f.state}
	f.service.SetStateBackend(flaky)
	request := suspend(t, f, timedGate(model.TimeoutReject), "run-1")

	advance(2 * time.Minute)
	flaky.failLoad = true
	processed, err := f.service.ExpireDue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, processed)

	// still pending; no terminal transition while the snapshot is unreachable
	current, _ := f.service.GetRequest(ctx, request.ID)
	assert.Equal(t, approval.StatusPending, current.Status)

	// the next pass picks it up once the backend recovers
	flaky.failLoad = false
	processed, err = f.service.ExpireDue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, processed)
}

func TestService_ReconcileOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// live request: snapshot must survive
	live := suspend(t, f, deployGate(1), "run-1")

	// crash leftover: snapshot without a request row
	assert.NoError(t, f.state.Save(ctx, "orphan-1", []byte("snap"), 0))

	// terminal leftover: rejected request whose snapshot delete did not land
	rejected := suspend(t, f, deployGate(1), "run-2")
	_, err := f.service.SubmitDecision(ctx, rejected.ID, "alice", nil, approval.DecisionReject, "no")
	assert.NoError(t, err)
	assert.NoError(t, f.state.Save(ctx, rejected.ID, []byte("stale"), 0))

	removed, err := f.service.ReconcileOrphans(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = f.state.Load(ctx, live.ID)
	assert.NoError(t, err)
	_, err = f.state.Load(ctx, "orphan-1")
	assert.ErrorIs(t, err, state.ErrNotFound)
	_, err = f.state.Load(ctx, rejected.ID)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestRunSweeps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	checkpoint := timedGate(model.TimeoutReject)
	checkpoint.Timeout = time.Nanosecond
	request := suspend(t, f, checkpoint, "run-1")

	stop := approval.RunSweeps(ctx, f.service, 5*time.Millisecond)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current, err := f.service.GetRequest(ctx, request.ID)
		assert.NoError(t, err)
		if current.Status == approval.StatusRejected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sweep did not expire the request")
}
