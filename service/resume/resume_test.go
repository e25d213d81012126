package resume

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/pausor/codec"
	"github.com/viant/pausor/runtime/execution"
	"github.com/viant/pausor/service/approval"
	"github.com/viant/pausor/service/state"
	statefs "github.com/viant/pausor/service/state/fs"
)

type captureEngine struct {
	contexts []*execution.Context
	err      error
}

func (e *captureEngine) Resume(ctx context.Context, execCtx *execution.Context) error {
	if e.err != nil {
		return e.err
	}
	e.contexts = append(e.contexts, execCtx)
	return nil
}

func approvedRequest(id string) *approval.Request {
	resolvedAt := time.Unix(1700000000, 0).UTC()
	return &approval.Request{
		ID:         id,
		Status:     approval.StatusApproved,
		ResolvedBy: "alice",
		Comment:    "lgtm",
		ResolvedAt: &resolvedAt,
	}
}

func TestService_Resume(t *testing.T) {
	ctx := context.Background()
	backend := statefs.New("mem://localhost/resume/ok")
	aCodec := codec.New()

	execCtx := execution.New("flow-1", "run-1", "")
	execCtx.PausedNodeID = "gate"
	execCtx.AddResult("load", "done")
	snapshot, err := aCodec.Encode(execCtx)
	assert.NoError(t, err)
	assert.NoError(t, backend.Save(ctx, "req-1", snapshot, 0))

	engine := &captureEngine{}
	service := New(backend, aCodec, engine)
	assert.NoError(t, service.Resume(ctx, approvedRequest("req-1")))

	// outcome injected at the paused node
	assert.Equal(t, 1, len(engine.contexts))
	outcome := engine.contexts[0].Outcome
	assert.Equal(t, "gate", outcome.NodeID)
	assert.Equal(t, "approved", outcome.Status)
	assert.Equal(t, "alice", outcome.ResolvedBy)

	// snapshot removed after the accepted handoff
	_, err = backend.Load(ctx, "req-1")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestService_Resume_EngineRejects(t *testing.T) {
	ctx := context.Background()
	backend := statefs.New("mem://localhost/resume/rejects")
	aCodec := codec.New()

	snapshot, _ := aCodec.Encode(execution.New("flow-1", "run-1", ""))
	assert.NoError(t, backend.Save(ctx, "req-1", snapshot, 0))

	engine := &captureEngine{err: fmt.Errorf("engine busy")}
	service := New(backend, aCodec, engine)
	assert.Error(t, service.Resume(ctx, approvedRequest("req-1")))

	// snapshot retained for retry
	_, err := backend.Load(ctx, "req-1")
	assert.NoError(t, err)

	// missing snapshot is an error too
	assert.Error(t, service.Resume(ctx, approvedRequest("missing")))
}

func TestHTTPEngine(t *testing.T) {
	aCodec := codec.New()
	var received *execution.Context
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		data, _ := io.ReadAll(request.Body)
		received, _ = aCodec.Decode(data)
		writer.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL, WithEngineCodec(aCodec))
	execCtx := execution.New("flow-1", "run-1", "")
	execCtx.PausedNodeID = "gate"
	assert.NoError(t, engine.Resume(context.Background(), execCtx))
	assert.NotNil(t, received)
	assert.Equal(t, "gate", received.PausedNodeID)

	failing := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	engine = NewHTTPEngine(failing.URL)
	assert.Error(t, engine.Resume(context.Background(), execCtx))
}
