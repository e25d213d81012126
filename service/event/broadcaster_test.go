package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/pausor/service/messaging/memory"
)

type notice struct {
	FlowID string
	Kind   string
}

func receive(t *testing.T, subscription *Subscription[notice]) notice {
	t.Helper()
	select {
	case event := <-subscription.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return notice{}
	}
}

func TestBroadcaster(t *testing.T) {
	queue := memory.NewQueue[notice](memory.DefaultConfig())
	broadcaster := NewBroadcaster[notice](queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx)

	all := broadcaster.Subscribe(nil)
	defer all.Close()
	flowOnly := broadcaster.Subscribe(func(event *notice) bool { return event.FlowID == "flow-1" })
	defer flowOnly.Close()

	assert.NoError(t, queue.Publish(ctx, &notice{FlowID: "flow-1", Kind: "created"}))
	assert.NoError(t, queue.Publish(ctx, &notice{FlowID: "flow-2", Kind: "created"}))

	assert.Equal(t, "flow-1", receive(t, all).FlowID)
	assert.Equal(t, "flow-2", receive(t, all).FlowID)

	matched := receive(t, flowOnly)
	assert.Equal(t, "flow-1", matched.FlowID)
	select {
	case unexpected := <-flowOnly.Events():
		t.Fatalf("filter leaked event for %v", unexpected.FlowID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_Close(t *testing.T) {
	queue := memory.NewQueue[notice](memory.DefaultConfig())
	broadcaster := NewBroadcaster[notice](queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx)

	subscription := broadcaster.Subscribe(nil)
	subscription.Close()
	subscription.Close() // idempotent

	_, open := <-subscription.Events()
	assert.False(t, open)

	// publishing after close must not panic
	assert.NoError(t, queue.Publish(ctx, &notice{FlowID: "flow-1"}))
	time.Sleep(20 * time.Millisecond)
}
