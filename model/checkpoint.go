package model

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeoutPolicy determines what happens to an approval request whose deadline
// passed without the required number of decisions.
type TimeoutPolicy string

const (
	// TimeoutApprove resolves the request as approved and resumes execution.
	TimeoutApprove TimeoutPolicy = "approve"
	// TimeoutReject resolves the request as rejected and discards the snapshot.
	TimeoutReject TimeoutPolicy = "reject"
	// TimeoutEscalate re-arms the request once with a new approver set and a
	// fresh deadline; a second expiry always rejects so that every request
	// terminates.
	TimeoutEscalate TimeoutPolicy = "escalate"
)

// Checkpoint is the design-time configuration of a pause point attached to a
// single workflow node. A checkpoint is immutable for the lifetime of a run;
// runtime state lives on the approval request instantiated from it.
type Checkpoint struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// RequiredApprovers is the approve-vote quorum; defaults to 1.
	RequiredApprovers int `json:"requiredApprovers,omitempty" yaml:"requiredApprovers,omitempty"`

	// Approvers lists eligible deciders as `user:<id>`, `role:<tag>` or bare
	// user identifiers. An empty list means nobody can decide, which is a
	// configuration error caught by Validate.
	Approvers []string `json:"approvers" yaml:"approvers"`

	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	OnTimeout TimeoutPolicy `json:"onTimeout,omitempty" yaml:"onTimeout,omitempty"`

	// Condition optionally gates the checkpoint per run. The expression is
	// evaluated against the run variables; when it yields false the engine
	// continues without suspending.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// EscalateTo replaces Approvers when OnTimeout==escalate; when empty the
	// original approver set is kept.
	EscalateTo []string `json:"escalateTo,omitempty" yaml:"escalateTo,omitempty"`
	// EscalationTimeout arms the escalated request; falls back to Timeout.
	EscalationTimeout time.Duration `json:"escalationTimeout,omitempty" yaml:"escalationTimeout,omitempty"`
}

// Validate returns an error describing the first invalid setting, or nil.
func (c *Checkpoint) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("checkpoint id is required")
	}
	if len(c.Approvers) == 0 {
		return fmt.Errorf("checkpoint %s: approvers list is empty", c.ID)
	}
	if c.RequiredApprovers < 0 {
		return fmt.Errorf("checkpoint %s: requiredApprovers must be >= 0", c.ID)
	}
	switch c.OnTimeout {
	case "", TimeoutApprove, TimeoutReject, TimeoutEscalate:
	default:
		return fmt.Errorf("checkpoint %s: unsupported timeout policy %q", c.ID, c.OnTimeout)
	}
	if c.OnTimeout == TimeoutEscalate && c.Timeout <= 0 {
		return fmt.Errorf("checkpoint %s: escalate policy requires a timeout", c.ID)
	}
	return nil
}

// Quorum returns the effective approve-vote threshold.
func (c *Checkpoint) Quorum() int {
	if c.RequiredApprovers <= 0 {
		return 1
	}
	return c.RequiredApprovers
}

// EscalationApprovers returns the approver set used after escalation.
func (c *Checkpoint) EscalationApprovers() []string {
	if len(c.EscalateTo) > 0 {
		return c.EscalateTo
	}
	return c.Approvers
}

// EscalationDeadline returns the timeout applied to an escalated request.
func (c *Checkpoint) EscalationDeadline() time.Duration {
	if c.EscalationTimeout > 0 {
		return c.EscalationTimeout
	}
	return c.Timeout
}

// Eligible reports whether the supplied approver, holding the supplied roles,
// appears on the allow-list. Matching follows the policy tag scheme: an entry
// `role:ops` matches any approver with the ops role, `user:alice` and plain
// `alice` both match the alice user id.
func Eligible(allowed []string, approver string, roles []string) bool {
	if approver == "" {
		return false
	}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		switch {
		case strings.HasPrefix(entry, "user:"):
			if entry[len("user:"):] == approver {
				return true
			}
		case strings.HasPrefix(entry, "role:"):
			tag := entry[len("role:"):]
			for _, role := range roles {
				if role == tag {
					return true
				}
			}
		default:
			if entry == approver {
				return true
			}
		}
	}
	return false
}

// Checkpoints is a lookup-able collection of checkpoint definitions, normally
// owned by the workflow definition and loaded once at startup.
type Checkpoints []*Checkpoint

// Lookup returns a checkpoint by ID, or nil.
func (c Checkpoints) Lookup(id string) *Checkpoint {
	for _, item := range c {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Validate validates every checkpoint and checks ID uniqueness.
func (c Checkpoints) Validate() error {
	seen := map[string]bool{}
	for _, item := range c {
		if err := item.Validate(); err != nil {
			return err
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate checkpoint id %s", item.ID)
		}
		seen[item.ID] = true
	}
	return nil
}

type checkpointsDocument struct {
	Checkpoints []*Checkpoint `yaml:"checkpoints"`
}

// LoadCheckpoints parses a YAML checkpoint document of the form:
//
//	checkpoints:
//	  - id: deploy-gate
//	    approvers: [ "role:ops" ]
//	    requiredApprovers: 2
//	    timeout: 24h
//	    onTimeout: escalate
//	    escalateTo: [ "user:cto" ]
func LoadCheckpoints(data []byte) (Checkpoints, error) {
	doc := &checkpointsDocument{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoints: %w", err)
	}
	ret := Checkpoints(doc.Checkpoints)
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
