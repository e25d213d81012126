// Package execution defines the resumable execution context captured when a
// graph run suspends at a checkpoint, and reconstructed when it resumes. The
// graph engine owns scheduling and node semantics; this package only models
// the state that has to survive the human-decision interval.
package execution

import "time"

// NodeResult holds the output produced by one graph node. Results may
// reference other results through Upstream; because the underlying graph is
// not a tree those references can form cycles, which the snapshot codec
// handles with an identity scheme keyed by NodeID.
type NodeResult struct {
	NodeID string `json:"nodeId"`

	// Payload carries the node output. Values beyond plain JSON types
	// (maps, slices, strings, numbers, booleans) must be registered with the
	// snapshot codec or encoding fails.
	Payload interface{} `json:"payload,omitempty"`

	// Upstream references the results this one was computed from.
	Upstream []*NodeResult `json:"-"`

	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// Context is the full in-flight state of a suspended graph run.
type Context struct {
	FlowID    string `json:"flowId"`
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId,omitempty"`

	// PausedNodeID identifies the checkpoint node execution stopped at.
	PausedNodeID string `json:"pausedNodeId"`

	Completed []string `json:"completed,omitempty"`
	Pending   []string `json:"pending,omitempty"`

	// Results maps node ID to its result; every result reachable through
	// Upstream references must appear here.
	Results map[string]*NodeResult `json:"-"`

	// Artifacts carries opaque binary side products of completed nodes.
	Artifacts map[string][]byte `json:"-"`

	// Outcome is nil while suspended; the resumption trigger injects the
	// approval outcome before handing the context back to the engine.
	Outcome *Outcome `json:"outcome,omitempty"`
}

// New creates an execution context for the supplied run identifiers.
func New(flowID, runID, sessionID string) *Context {
	return &Context{
		FlowID:    flowID,
		RunID:     runID,
		SessionID: sessionID,
		Results:   make(map[string]*NodeResult),
		Artifacts: make(map[string][]byte),
	}
}

// AddResult records a node result and returns it so callers can wire
// upstream references.
func (c *Context) AddResult(nodeID string, payload interface{}, upstream ...*NodeResult) *NodeResult {
	if c.Results == nil {
		c.Results = make(map[string]*NodeResult)
	}
	result := &NodeResult{NodeID: nodeID, Payload: payload, Upstream: upstream}
	c.Results[nodeID] = result
	return result
}

// Result returns the result recorded for a node, or nil.
func (c *Context) Result(nodeID string) *NodeResult {
	if c.Results == nil {
		return nil
	}
	return c.Results[nodeID]
}

// Clone creates a deep copy of the context. Result payloads are shared (the
// engine treats them as immutable once recorded); the result graph itself,
// including cyclic upstream references, is rebuilt so the copy can be mutated
// independently.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := &Context{
		FlowID:       c.FlowID,
		RunID:        c.RunID,
		SessionID:    c.SessionID,
		PausedNodeID: c.PausedNodeID,
	}
	if len(c.Completed) > 0 {
		out.Completed = append([]string(nil), c.Completed...)
	}
	if len(c.Pending) > 0 {
		out.Pending = append([]string(nil), c.Pending...)
	}
	if c.Results != nil {
		out.Results = make(map[string]*NodeResult, len(c.Results))
		for id, result := range c.Results {
			out.Results[id] = &NodeResult{NodeID: result.NodeID, Payload: result.Payload, Elapsed: result.Elapsed}
		}
		// Second pass resolves upstream pointers inside the copied graph.
		for id, result := range c.Results {
			if len(result.Upstream) == 0 {
				continue
			}
			clone := out.Results[id]
			clone.Upstream = make([]*NodeResult, 0, len(result.Upstream))
			for _, upstream := range result.Upstream {
				if target, ok := out.Results[upstream.NodeID]; ok {
					clone.Upstream = append(clone.Upstream, target)
				}
			}
		}
	}
	if c.Artifacts != nil {
		out.Artifacts = make(map[string][]byte, len(c.Artifacts))
		for name, blob := range c.Artifacts {
			out.Artifacts[name] = append([]byte(nil), blob...)
		}
	}
	if c.Outcome != nil {
		outcome := *c.Outcome
		out.Outcome = &outcome
	}
	return out
}
