// Package gorm provides the relational approval store. Transitions rely on
// conditional UPDATE guards rather than row locks, so the store works the
// same over sqlite and postgres.
package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/viant/pausor/service/approval"
)

// Store persists approval requests and decisions in a relational database.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns a relational store. The supplied *gorm.DB
// must be opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&RequestRecord{}, &DecisionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate approval schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateRequest persists a new request.
func (s *Store) CreateRequest(ctx context.Context, request *approval.Request) error {
	err := s.db.WithContext(ctx).Create(toRecord(request)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return approval.ErrDuplicateRequest
	}
	return err
}

// GetRequest returns the request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*approval.Request, error) {
	record := &RequestRecord{}
	err := s.db.WithContext(ctx).First(record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

// FindActive returns the non-terminal request for (checkpoint, run).
func (s *Store) FindActive(ctx context.Context, checkpointID, runID string) (*approval.Request, error) {
	record := &RequestRecord{}
	err := s.db.WithContext(ctx).
		First(record, "checkpoint_id = ? AND run_id = ? AND active = ?", checkpointID, runID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

// ListPending returns pending requests matching the filter, oldest first.
func (s *Store) ListPending(ctx context.Context, filter approval.Filter) ([]*approval.Request, error) {
	query := s.db.WithContext(ctx).Where("status = ?", string(approval.StatusPending))
	if filter.FlowID != "" {
		query = query.Where("flow_id = ?", filter.FlowID)
	}
	if filter.DueBefore != nil {
		query = query.Where("expires_at IS NOT NULL AND expires_at < ?", *filter.DueBefore)
	}
	var records []*RequestRecord
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	ret := make([]*approval.Request, 0, len(records))
	for _, record := range records {
		ret = append(ret, fromRecord(record))
	}
	return ret, nil
}

// UpdateRequest applies a version-guarded update.
func (s *Store) UpdateRequest(ctx context.Context, request *approval.Request) error {
	return s.update(s.db.WithContext(ctx), request)
}

func (s *Store) update(tx *gorm.DB, request *approval.Request) error {
	record := toRecord(request)
	record.Version = request.Version + 1
	result := tx.Model(&RequestRecord{}).
		Where("id = ? AND version = ?", request.ID, request.Version).
		Select("*").Omit("id", "checkpoint_id", "run_id", "created_at").
		Updates(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&RequestRecord{}).Where("id = ?", request.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return approval.ErrNotFound
		}
		return approval.ErrConflict
	}
	request.Version++
	return nil
}

// AddDecision appends the decision and applies the request update in one
// transaction, so a lost version race leaves no decision row behind.
func (s *Store) AddDecision(ctx context.Context, decision *approval.Decision, request *approval.Request) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toDecisionRecord(decision)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return approval.ErrDuplicateVote
			}
			return err
		}
		return s.update(tx, request)
	})
}

// ListDecisions returns all decisions for a request, oldest first.
func (s *Store) ListDecisions(ctx context.Context, requestID string) ([]*approval.Decision, error) {
	var records []*DecisionRecord
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	ret := make([]*approval.Decision, 0, len(records))
	for _, record := range records {
		ret = append(ret, fromDecisionRecord(record))
	}
	return ret, nil
}

var _ approval.Store = (*Store)(nil)
