// Package db stores snapshots as relational rows. Expiry is enforced at read
// time through an expires_at column; a Load past the deadline deletes the row
// and reports not-found.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/viant/pausor/internal/clock"
	"github.com/viant/pausor/service/state"
)

// SnapshotRecord is the relational shape of a stored snapshot.
type SnapshotRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Snapshot  []byte
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName names the snapshot table.
func (SnapshotRecord) TableName() string { return "execution_snapshots" }

// Backend is a gorm-backed snapshot store.
type Backend struct {
	db *gorm.DB
}

// New migrates the schema and returns a database backend.
func New(db *gorm.DB) (*Backend, error) {
	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot schema: %w", err)
	}
	return &Backend{db: db}, nil
}

// Save stores the snapshot, replacing any previous value.
func (b *Backend) Save(ctx context.Context, id string, snapshot []byte, ttl time.Duration) error {
	record := &SnapshotRecord{ID: id, Snapshot: snapshot, UpdatedAt: clock.Now()}
	if ttl > 0 {
		expiresAt := clock.Now().Add(ttl)
		record.ExpiresAt = &expiresAt
	}
	return b.db.WithContext(ctx).Save(record).Error
}

// Load returns the stored snapshot or state.ErrNotFound.
func (b *Backend) Load(ctx context.Context, id string) ([]byte, error) {
	record := &SnapshotRecord{}
	err := b.db.WithContext(ctx).First(record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if record.ExpiresAt != nil && !clock.Now().Before(*record.ExpiresAt) {
		_ = b.Delete(ctx, id)
		return nil, state.ErrNotFound
	}
	return record.Snapshot, nil
}

// Delete removes the snapshot; missing rows are ignored.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.db.WithContext(ctx).Delete(&SnapshotRecord{}, "id = ?", id).Error
}

// ExtendTTL rearms the expiry of a stored snapshot.
func (b *Backend) ExtendTTL(ctx context.Context, id string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		deadline := clock.Now().Add(ttl)
		expiresAt = &deadline
	}
	result := b.db.WithContext(ctx).Model(&SnapshotRecord{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return state.ErrNotFound
	}
	return nil
}

// List enumerates stored snapshot IDs.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.db.WithContext(ctx).Model(&SnapshotRecord{}).Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

var _ state.Backend = (*Backend)(nil)
var _ state.Lister = (*Backend)(nil)
