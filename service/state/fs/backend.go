// Package fs stores snapshots as JSON documents on any viant/afs scheme
// (file://, mem://, s3:// ...). TTLs are enforced lazily at read time through
// an expiry field on the stored envelope.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/viant/pausor/internal/clock"
	"github.com/viant/pausor/service/state"
)

const snapshotExt = ".json"

type envelope struct {
	Snapshot  []byte     `json:"snapshot"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Backend is an afs-backed snapshot store.
type Backend struct {
	fs      afs.Service
	baseURL string
}

// New creates a backend rooted at baseURL, e.g. file:///var/lib/pausor or
// mem://localhost/snapshots.
func New(baseURL string) *Backend {
	return &Backend{fs: afs.New(), baseURL: baseURL}
}

func (b *Backend) snapshotURL(id string) string {
	return url.Join(b.baseURL, id+snapshotExt)
}

// Save stores the snapshot, replacing any previous value.
func (b *Backend) Save(ctx context.Context, id string, snapshot []byte, ttl time.Duration) error {
	document := &envelope{Snapshot: snapshot}
	if ttl > 0 {
		expiresAt := clock.Now().Add(ttl)
		document.ExpiresAt = &expiresAt
	}
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", id, err)
	}
	return b.fs.Upload(ctx, b.snapshotURL(id), file.DefaultFileOsMode, bytes.NewReader(data))
}

func (b *Backend) load(ctx context.Context, id string) (*envelope, error) {
	URL := b.snapshotURL(id)
	if ok, _ := b.fs.Exists(ctx, URL); !ok {
		return nil, state.ErrNotFound
	}
	data, err := b.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot %s: %w", id, err)
	}
	document := &envelope{}
	if err := json.Unmarshal(data, document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", id, err)
	}
	if document.ExpiresAt != nil && !clock.Now().Before(*document.ExpiresAt) {
		_ = b.fs.Delete(ctx, URL)
		return nil, state.ErrNotFound
	}
	return document, nil
}

// Load returns the stored snapshot or state.ErrNotFound.
func (b *Backend) Load(ctx context.Context, id string) ([]byte, error) {
	document, err := b.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return document.Snapshot, nil
}

// Delete removes the snapshot; missing snapshots are ignored.
func (b *Backend) Delete(ctx context.Context, id string) error {
	URL := b.snapshotURL(id)
	if ok, _ := b.fs.Exists(ctx, URL); !ok {
		return nil
	}
	return b.fs.Delete(ctx, URL)
}

// ExtendTTL rewrites the envelope with a fresh expiry.
func (b *Backend) ExtendTTL(ctx context.Context, id string, ttl time.Duration) error {
	document, err := b.load(ctx, id)
	if err != nil {
		return err
	}
	return b.Save(ctx, id, document.Snapshot, ttl)
}

// List enumerates stored snapshot IDs.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	objects, err := b.fs.List(ctx, b.baseURL)
	if err != nil {
		return nil, err
	}
	var ret []string
	for _, object := range objects {
		name := object.Name()
		if object.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		ret = append(ret, strings.TrimSuffix(name, snapshotExt))
	}
	return ret, nil
}

var _ state.Backend = (*Backend)(nil)
var _ state.Lister = (*Backend)(nil)
