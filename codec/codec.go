// Package codec serialises the in-flight execution context captured at a
// checkpoint into an opaque, durable representation and reconstructs it with
// full fidelity at resumption time.
//
// Node-result graphs are encoded with an identity scheme: every result is
// stored once in a flat table keyed by node ID and upstream references are
// written as node IDs, so cyclic back-references between results neither loop
// nor duplicate data. Result payloads are either plain JSON values (objects,
// arrays, strings, float64 numbers, booleans) or Go types registered up
// front - encoding an unregistered payload type fails with ErrUnencodable
// rather than silently dropping data. Integer-typed payloads are not plain
// values: they would come back as float64, so they must travel inside a
// registered type to round-trip exactly.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/viant/pausor/runtime/execution"
)

// ErrUnencodable signals that a context cannot be serialised without data
// loss; suspension has to be aborted rather than persisting a partial
// snapshot.
var ErrUnencodable = errors.New("unencodable execution context")

const snapshotVersion = 1

// Service encodes and decodes execution snapshots.
type Service struct {
	types *Types
}

// New creates a codec service.
func New(options ...Option) *Service {
	ret := &Service{types: NewTypes()}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Option customises a codec service.
type Option func(*Service)

// WithTypes registers payload types the codec accepts beyond plain JSON
// values.
func WithTypes(types ...interface{}) Option {
	return func(s *Service) {
		for _, t := range types {
			s.types.Register(t)
		}
	}
}

// Types exposes the payload type registry so callers can register additional
// types after construction.
func (s *Service) Types() *Types {
	return s.types
}

type snapshot struct {
	Version      int                `json:"version"`
	FlowID       string             `json:"flowId"`
	RunID        string             `json:"runId"`
	SessionID    string             `json:"sessionId,omitempty"`
	PausedNodeID string             `json:"pausedNodeId"`
	Completed    []string           `json:"completed,omitempty"`
	Pending      []string           `json:"pending,omitempty"`
	Results      []*resultEntry     `json:"results"`
	Artifacts    map[string][]byte  `json:"artifacts,omitempty"`
	Outcome      *execution.Outcome `json:"outcome,omitempty"`
}

type resultEntry struct {
	NodeID   string           `json:"nodeId"`
	Payload  *payloadEnvelope `json:"payload,omitempty"`
	Upstream []string         `json:"upstream,omitempty"`
	Elapsed  time.Duration    `json:"elapsed,omitempty"`
}

type payloadEnvelope struct {
	// Type names a registered payload type; empty for plain JSON values.
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// Encode serialises the supplied context. It fails with ErrUnencodable when a
// payload type is not registered or when an upstream reference points at a
// result missing from the context result table.
func (s *Service) Encode(ctx *execution.Context) ([]byte, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrUnencodable)
	}
	snap := &snapshot{
		Version:      snapshotVersion,
		FlowID:       ctx.FlowID,
		RunID:        ctx.RunID,
		SessionID:    ctx.SessionID,
		PausedNodeID: ctx.PausedNodeID,
		Completed:    ctx.Completed,
		Pending:      ctx.Pending,
		Artifacts:    ctx.Artifacts,
		Outcome:      ctx.Outcome,
		Results:      make([]*resultEntry, 0, len(ctx.Results)),
	}
	for nodeID, result := range ctx.Results {
		if result == nil {
			continue
		}
		entry := &resultEntry{NodeID: nodeID, Elapsed: result.Elapsed}
		payload, err := s.encodePayload(result.Payload)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nodeID, err)
		}
		entry.Payload = payload
		for _, upstream := range result.Upstream {
			if upstream == nil {
				continue
			}
			anchored, ok := ctx.Results[upstream.NodeID]
			if !ok || anchored != upstream {
				return nil, fmt.Errorf("%w: node %s references result %s outside the context result table", ErrUnencodable, nodeID, upstream.NodeID)
			}
			entry.Upstream = append(entry.Upstream, upstream.NodeID)
		}
		snap.Results = append(snap.Results, entry)
	}
	sort.Slice(snap.Results, func(i, j int) bool { return snap.Results[i].NodeID < snap.Results[j].NodeID })
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode reconstructs an execution context from its serialised form,
// including cyclic upstream references.
func (s *Service) Decode(data []byte) (*execution.Context, error) {
	snap := &snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	ctx := &execution.Context{
		FlowID:       snap.FlowID,
		RunID:        snap.RunID,
		SessionID:    snap.SessionID,
		PausedNodeID: snap.PausedNodeID,
		Completed:    snap.Completed,
		Pending:      snap.Pending,
		Artifacts:    snap.Artifacts,
		Outcome:      snap.Outcome,
		Results:      make(map[string]*execution.NodeResult, len(snap.Results)),
	}
	if ctx.Artifacts == nil {
		ctx.Artifacts = make(map[string][]byte)
	}
	for _, entry := range snap.Results {
		payload, err := s.decodePayload(entry.Payload)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", entry.NodeID, err)
		}
		ctx.Results[entry.NodeID] = &execution.NodeResult{NodeID: entry.NodeID, Payload: payload, Elapsed: entry.Elapsed}
	}
	// Second pass resolves upstream references against the rebuilt table so
	// that shared and cyclic structure is restored by identity.
	for _, entry := range snap.Results {
		if len(entry.Upstream) == 0 {
			continue
		}
		result := ctx.Results[entry.NodeID]
		result.Upstream = make([]*execution.NodeResult, 0, len(entry.Upstream))
		for _, upstreamID := range entry.Upstream {
			target, ok := ctx.Results[upstreamID]
			if !ok {
				return nil, fmt.Errorf("corrupted snapshot: node %s references unknown result %s", entry.NodeID, upstreamID)
			}
			result.Upstream = append(result.Upstream, target)
		}
	}
	return ctx, nil
}

func (s *Service) encodePayload(payload interface{}) (*payloadEnvelope, error) {
	if payload == nil {
		return nil, nil
	}
	if isPlainValue(payload) {
		value, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
		}
		return &payloadEnvelope{Value: value}, nil
	}
	name, ok := s.types.NameOf(payload)
	if !ok {
		return nil, fmt.Errorf("%w: unregistered payload type %T", ErrUnencodable, payload)
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}
	return &payloadEnvelope{Type: name, Value: value}, nil
}

func (s *Service) decodePayload(envelope *payloadEnvelope) (interface{}, error) {
	if envelope == nil {
		return nil, nil
	}
	if envelope.Type == "" {
		var value interface{}
		if err := json.Unmarshal(envelope.Value, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
	return s.types.New(envelope.Type, envelope.Value)
}

// isPlainValue reports whether the value round-trips through encoding/json
// without a type registration: nil, string, bool, float64 and maps/slices
// thereof. Integer kinds are excluded - json.Unmarshal hands them back as
// float64, losing the Go type and, above 2^53, precision; they have to travel
// inside a registered payload type.
func isPlainValue(value interface{}) bool {
	switch actual := value.(type) {
	case nil, string, bool, float64:
		return true
	case map[string]interface{}:
		for _, item := range actual {
			if !isPlainValue(item) {
				return false
			}
		}
		return true
	case []interface{}:
		for _, item := range actual {
			if !isPlainValue(item) {
				return false
			}
		}
		return true
	}
	return false
}
