package gorm

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/viant/pausor/model"
	"github.com/viant/pausor/service/approval"
)

// RequestRecord is the relational shape of an approval request. Active keeps
// the at-most-one-active invariant: it is true while the request is
// non-terminal and NULL afterwards, so the composite unique index only
// constrains live rows.
type RequestRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	CheckpointID string `gorm:"size:255;uniqueIndex:uniq_active_checkpoint_run"`
	RunID        string `gorm:"size:255;uniqueIndex:uniq_active_checkpoint_run"`
	Active       *bool  `gorm:"uniqueIndex:uniq_active_checkpoint_run"`
	FlowID       string `gorm:"size:255;index"`
	NodeID       string `gorm:"size:255"`
	Title        string `gorm:"size:512"`

	Status    string `gorm:"size:16;index"`
	SubStatus string `gorm:"size:32"`

	Approvers         datatypes.JSON
	ApprovalsRequired int
	ApprovalsReceived int

	OnTimeout         string `gorm:"size:16"`
	EscalateTo        datatypes.JSON
	EscalationTimeout int64
	Escalated         bool

	CreatedAt  time.Time
	ExpiresAt  *time.Time `gorm:"index"`
	ResolvedAt *time.Time
	ResolvedBy string `gorm:"size:255"`
	Comment    string
	Meta       datatypes.JSON

	Version int
}

// TableName keeps the legacy-free explicit name.
func (RequestRecord) TableName() string { return "approval_requests" }

// DecisionRecord is the relational shape of a decision; the unique
// (request_id, approver) index enforces one vote per approver.
type DecisionRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	RequestID string `gorm:"size:36;uniqueIndex:uniq_request_approver"`
	Approver  string `gorm:"size:255;uniqueIndex:uniq_request_approver"`
	Kind      string `gorm:"size:16"`
	Comment   string
	CreatedAt time.Time
}

func (DecisionRecord) TableName() string { return "approval_decisions" }

func encodeJSON(value interface{}) datatypes.JSON {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return data
}

func toRecord(request *approval.Request) *RequestRecord {
	record := &RequestRecord{
		ID:                request.ID,
		CheckpointID:      request.CheckpointID,
		RunID:             request.RunID,
		FlowID:            request.FlowID,
		NodeID:            request.NodeID,
		Title:             request.Title,
		Status:            string(request.Status),
		SubStatus:         request.SubStatus,
		Approvers:         encodeJSON(request.Approvers),
		ApprovalsRequired: request.ApprovalsRequired,
		ApprovalsReceived: request.ApprovalsReceived,
		OnTimeout:         string(request.OnTimeout),
		EscalateTo:        encodeJSON(request.EscalateTo),
		EscalationTimeout: int64(request.EscalationTimeout),
		Escalated:         request.Escalated,
		CreatedAt:         request.CreatedAt,
		ExpiresAt:         request.ExpiresAt,
		ResolvedAt:        request.ResolvedAt,
		ResolvedBy:        request.ResolvedBy,
		Comment:           request.Comment,
		Meta:              encodeJSON(request.Meta),
		Version:           request.Version,
	}
	if !approval.Status(record.Status).Terminal() {
		active := true
		record.Active = &active
	}
	return record
}

func fromRecord(record *RequestRecord) *approval.Request {
	request := &approval.Request{
		ID:                record.ID,
		CheckpointID:      record.CheckpointID,
		RunID:             record.RunID,
		FlowID:            record.FlowID,
		NodeID:            record.NodeID,
		Title:             record.Title,
		Status:            approval.Status(record.Status),
		SubStatus:         record.SubStatus,
		ApprovalsRequired: record.ApprovalsRequired,
		ApprovalsReceived: record.ApprovalsReceived,
		OnTimeout:         model.TimeoutPolicy(record.OnTimeout),
		EscalationTimeout: time.Duration(record.EscalationTimeout),
		Escalated:         record.Escalated,
		CreatedAt:         record.CreatedAt,
		ExpiresAt:         record.ExpiresAt,
		ResolvedAt:        record.ResolvedAt,
		ResolvedBy:        record.ResolvedBy,
		Comment:           record.Comment,
		Version:           record.Version,
	}
	if len(record.Approvers) > 0 {
		_ = json.Unmarshal(record.Approvers, &request.Approvers)
	}
	if len(record.EscalateTo) > 0 {
		_ = json.Unmarshal(record.EscalateTo, &request.EscalateTo)
	}
	if len(record.Meta) > 0 {
		_ = json.Unmarshal(record.Meta, &request.Meta)
	}
	return request
}

func toDecisionRecord(decision *approval.Decision) *DecisionRecord {
	return &DecisionRecord{
		ID:        decision.ID,
		RequestID: decision.RequestID,
		Approver:  decision.Approver,
		Kind:      string(decision.Kind),
		Comment:   decision.Comment,
		CreatedAt: decision.CreatedAt,
	}
}

func fromDecisionRecord(record *DecisionRecord) *approval.Decision {
	return &approval.Decision{
		ID:        record.ID,
		RequestID: record.RequestID,
		Approver:  record.Approver,
		Kind:      approval.DecisionKind(record.Kind),
		Comment:   record.Comment,
		CreatedAt: record.CreatedAt,
	}
}
