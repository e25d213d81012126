package execution

import "time"

// Outcome carries the approval resolution injected into the context at the
// paused node's position before the engine continues past the checkpoint.
type Outcome struct {
	NodeID     string    `json:"nodeId"`
	Status     string    `json:"status"` // approved|rejected|expired|cancelled
	ResolvedBy string    `json:"resolvedBy,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// Approved reports whether the outcome allows execution to continue.
func (o *Outcome) Approved() bool {
	return o != nil && o.Status == "approved"
}
