package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/viant/pausor/service/state"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	addr := os.Getenv("PAUSOR_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %v: %v", addr, err)
	}
	backend := New(client, WithKeyPrefix("pausor:test:"+t.Name()+":"))
	t.Cleanup(func() {
		ids, _ := backend.List(context.Background())
		for _, id := range ids {
			_ = backend.Delete(context.Background(), id)
		}
		_ = client.Close()
	})
	return backend
}

func TestBackend(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	assert.NoError(t, backend.Save(ctx, "req-1", []byte("snap-1"), 0))
	data, err := backend.Load(ctx, "req-1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("snap-1"), data)

	ids, err := backend.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, ids)

	assert.NoError(t, backend.ExtendTTL(ctx, "req-1", time.Hour))
	assert.NoError(t, backend.ExtendTTL(ctx, "req-1", 0))
	assert.ErrorIs(t, backend.ExtendTTL(ctx, "missing", time.Hour), state.ErrNotFound)

	assert.NoError(t, backend.Delete(ctx, "req-1"))
	_, err = backend.Load(ctx, "req-1")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.NoError(t, backend.Delete(ctx, "req-1"))
}
