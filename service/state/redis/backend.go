// Package redis stores snapshots in Redis with native TTL support.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viant/pausor/service/state"
)

const defaultKeyPrefix = "pausor:snapshot:"

// Backend is a go-redis backed snapshot store.
type Backend struct {
	client    redis.UniversalClient
	keyPrefix string
}

// Option customises the backend.
type Option func(*Backend)

// WithKeyPrefix overrides the default key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) {
		b.keyPrefix = prefix
	}
}

// New creates a redis backend over the supplied client.
func New(client redis.UniversalClient, options ...Option) *Backend {
	ret := &Backend{client: client, keyPrefix: defaultKeyPrefix}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (b *Backend) key(id string) string {
	return b.keyPrefix + id
}

// Save stores the snapshot; a zero ttl persists it without expiry.
func (b *Backend) Save(ctx context.Context, id string, snapshot []byte, ttl time.Duration) error {
	return b.client.Set(ctx, b.key(id), snapshot, ttl).Err()
}

// Load returns the stored snapshot or state.ErrNotFound.
func (b *Backend) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the snapshot; missing keys are ignored.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.client.Del(ctx, b.key(id)).Err()
}

// ExtendTTL rearms the key's expiry; a zero ttl removes it.
func (b *Backend) ExtendTTL(ctx context.Context, id string, ttl time.Duration) error {
	var ok bool
	var err error
	if ttl > 0 {
		ok, err = b.client.Expire(ctx, b.key(id), ttl).Result()
	} else {
		ok, err = b.client.Persist(ctx, b.key(id)).Result()
		if err == nil && !ok {
			// Persist reports false for both missing keys and keys without
			// a TTL; only the former is an error.
			var exists int64
			exists, err = b.client.Exists(ctx, b.key(id)).Result()
			ok = exists > 0
		}
	}
	if err != nil {
		return err
	}
	if !ok {
		return state.ErrNotFound
	}
	return nil
}

// List enumerates stored snapshot IDs with SCAN.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	var ret []string
	iter := b.client.Scan(ctx, 0, b.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ret = append(ret, strings.TrimPrefix(iter.Val(), b.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

var _ state.Backend = (*Backend)(nil)
var _ state.Lister = (*Backend)(nil)
