package approval

import (
	"time"

	"github.com/viant/pausor/model"
)

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible from the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// SubStatusResumeFailed marks a resolved request whose resumption handoff was
// rejected by the engine; the snapshot is retained for operator retry.
const SubStatusResumeFailed = "resume_failed"

// DecisionKind is the vote carried by a single decision.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "approve"
	DecisionReject  DecisionKind = "reject"
	// DecisionRequestChanges records feedback without counting towards the
	// quorum or short-circuiting the request.
	DecisionRequestChanges DecisionKind = "request_changes"
)

// Request is the runtime state of one paused checkpoint within one run. The
// Version column is the optimistic-concurrency guard: every state-changing
// update is conditional on the version observed at read time.
type Request struct {
	ID           string `json:"id"`
	CheckpointID string `json:"checkpointId"`
	FlowID       string `json:"flowId"`
	RunID        string `json:"runId"`
	NodeID       string `json:"nodeId"`
	Title        string `json:"title,omitempty"`

	Status    Status `json:"status"`
	SubStatus string `json:"subStatus,omitempty"`

	// Approvers is the live allow-list; escalation replaces it.
	Approvers         []string `json:"approvers"`
	ApprovalsRequired int      `json:"approvalsRequired"`
	ApprovalsReceived int      `json:"approvalsReceived"`

	// Timeout policy captured from the checkpoint so sweeps need no
	// definition lookup.
	OnTimeout         model.TimeoutPolicy `json:"onTimeout,omitempty"`
	EscalateTo        []string            `json:"escalateTo,omitempty"`
	EscalationTimeout time.Duration       `json:"escalationTimeout,omitempty"`
	Escalated         bool                `json:"escalated,omitempty"`

	CreatedAt  time.Time              `json:"createdAt"`
	ExpiresAt  *time.Time             `json:"expiresAt,omitempty"`
	ResolvedAt *time.Time             `json:"resolvedAt,omitempty"`
	ResolvedBy string                 `json:"resolvedBy,omitempty"`
	Comment    string                 `json:"comment,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`

	Version int `json:"version"`
}

// Quorum returns the effective approve-vote threshold.
func (r *Request) Quorum() int {
	if r.ApprovalsRequired <= 0 {
		return 1
	}
	return r.ApprovalsRequired
}

// Clone returns a deep copy safe to mutate independently.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	ret := *r
	ret.Approvers = append([]string(nil), r.Approvers...)
	ret.EscalateTo = append([]string(nil), r.EscalateTo...)
	if r.ExpiresAt != nil {
		expiresAt := *r.ExpiresAt
		ret.ExpiresAt = &expiresAt
	}
	if r.ResolvedAt != nil {
		resolvedAt := *r.ResolvedAt
		ret.ResolvedAt = &resolvedAt
	}
	if r.Meta != nil {
		ret.Meta = make(map[string]interface{}, len(r.Meta))
		for k, v := range r.Meta {
			ret.Meta[k] = v
		}
	}
	return &ret
}

// Decision is one approver's vote on a request. Decisions are append-only and
// unique per (request, approver).
type Decision struct {
	ID        string       `json:"id"`
	RequestID string       `json:"requestId"`
	Approver  string       `json:"approver"`
	Kind      DecisionKind `json:"kind"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Event envelope published on every observable lifecycle change.
type Event struct {
	Topic     string    `json:"topic"`
	FlowID    string    `json:"flowId,omitempty"`
	Request   *Request  `json:"request,omitempty"`
	Decision  *Decision `json:"decision,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Standard event topics.
const (
	TopicRequestCreated      = "request.created"
	TopicDecisionCreated     = "decision.created"
	TopicRequestApproved     = "request.approved"
	TopicRequestRejected     = "request.rejected"
	TopicRequestExpired      = "request.expired"
	TopicRequestEscalated    = "request.escalated"
	TopicRequestCancelled    = "request.cancelled"
	TopicRequestResumeFailed = "request.resume_failed"
)
