package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/pausor/service/approval"
)

func newRequest(id, checkpointID, runID string) *approval.Request {
	return &approval.Request{
		ID:           id,
		CheckpointID: checkpointID,
		FlowID:       "flow-1",
		RunID:        runID,
		Status:       approval.StatusPending,
		Approvers:    []string{"user:alice"},
		CreatedAt:    time.Now(),
	}
}

func TestStore_CreateRequest(t *testing.T) {
	ctx := context.Background()
	aStore := New()

	assert.NoError(t, aStore.CreateRequest(ctx, newRequest("r1", "cp", "run")))
	// second active request for the same (checkpoint, run) is rejected
	err := aStore.CreateRequest(ctx, newRequest("r2", "cp", "run"))
	assert.ErrorIs(t, err, approval.ErrDuplicateRequest)

	// resolving the first frees the pair
	request, _ := aStore.GetRequest(ctx, "r1")
	request.Status = approval.StatusCancelled
	assert.NoError(t, aStore.UpdateRequest(ctx, request))
	assert.NoError(t, aStore.CreateRequest(ctx, newRequest("r2", "cp", "run")))
}

func TestStore_UpdateRequest_Conflict(t *testing.T) {
	ctx := context.Background()
	aStore := New()
	assert.NoError(t, aStore.CreateRequest(ctx, newRequest("r1", "cp", "run")))

	first, _ := aStore.GetRequest(ctx, "r1")
	second, _ := aStore.GetRequest(ctx, "r1")

	first.ApprovalsReceived = 1
	assert.NoError(t, aStore.UpdateRequest(ctx, first))
	assert.Equal(t, 1, first.Version)

	second.Status = approval.StatusCancelled
	assert.ErrorIs(t, aStore.UpdateRequest(ctx, second), approval.ErrConflict)

	_, err := aStore.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestStore_AddDecision(t *testing.T) {
	ctx := context.Background()
	aStore := New()
	assert.NoError(t, aStore.CreateRequest(ctx, newRequest("r1", "cp", "run")))

	request, _ := aStore.GetRequest(ctx, "r1")
	request.ApprovalsReceived = 1
	decision := &approval.Decision{ID: "d1", RequestID: "r1", Approver: "alice", Kind: approval.DecisionApprove, CreatedAt: time.Now()}
	assert.NoError(t, aStore.AddDecision(ctx, decision, request))

	// duplicate approver is rejected without touching the request
	request, _ = aStore.GetRequest(ctx, "r1")
	again := &approval.Decision{ID: "d2", RequestID: "r1", Approver: "alice", Kind: approval.DecisionApprove}
	assert.ErrorIs(t, aStore.AddDecision(ctx, again, request), approval.ErrDuplicateVote)

	// version conflict leaves no decision behind
	stale := request.Clone()
	stale.Version--
	other := &approval.Decision{ID: "d3", RequestID: "r1", Approver: "bob", Kind: approval.DecisionApprove}
	assert.ErrorIs(t, aStore.AddDecision(ctx, other, stale), approval.ErrConflict)

	decisions, err := aStore.ListDecisions(ctx, "r1")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(decisions))
	assert.Equal(t, "alice", decisions[0].Approver)
}

func TestStore_ListPending(t *testing.T) {
	ctx := context.Background()
	aStore := New()
	now := time.Now()

	due := newRequest("r1", "cp1", "run1")
	expiresAt := now.Add(-time.Minute)
	due.ExpiresAt = &expiresAt
	due.CreatedAt = now.Add(-time.Hour)
	assert.NoError(t, aStore.CreateRequest(ctx, due))

	fresh := newRequest("r2", "cp2", "run1")
	later := now.Add(time.Hour)
	fresh.ExpiresAt = &later
	assert.NoError(t, aStore.CreateRequest(ctx, fresh))

	otherFlow := newRequest("r3", "cp3", "run2")
	otherFlow.FlowID = "flow-2"
	assert.NoError(t, aStore.CreateRequest(ctx, otherFlow))

	all, err := aStore.ListPending(ctx, approval.Filter{})
	assert.NoError(t, err)
	assert.Equal(t, 3, len(all))
	assert.Equal(t, "r1", all[0].ID) // oldest first

	flow, err := aStore.ListPending(ctx, approval.Filter{FlowID: "flow-2"})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(flow))

	overdue, err := aStore.ListPending(ctx, approval.Filter{DueBefore: &now})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(overdue))
	assert.Equal(t, "r1", overdue[0].ID)

	active, err := aStore.FindActive(ctx, "cp1", "run1")
	assert.NoError(t, err)
	assert.Equal(t, "r1", active.ID)
	_, err = aStore.FindActive(ctx, "cp1", "run9")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}
