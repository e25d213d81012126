package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/viant/pausor/runtime/execution"
)

type invocationPayload struct {
	Model  string  `json:"model"`
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

func TestService_RoundTrip(t *testing.T) {
	codec := New(WithTypes(invocationPayload{}))

	large := bytes.Repeat([]byte("artifact"), 64*1024)

	cyclic := execution.New("flow-1", "run-1", "")
	cyclic.PausedNodeID = "gate"
	cyclic.Completed = []string{"a", "b"}
	cyclic.Pending = []string{"c"}
	a := cyclic.AddResult("a", map[string]interface{}{"rows": 10.0})
	b := cyclic.AddResult("b", "done", a)
	a.Upstream = append(a.Upstream, b) // cycle a <-> b
	cyclic.Artifacts["trace"] = []byte{0x1, 0x2}

	typed := execution.New("flow-2", "run-2", "session-9")
	typed.PausedNodeID = "review"
	typed.AddResult("invoke", invocationPayload{Model: "m1", Tokens: 128, Cost: 0.25})
	typed.AddResult("invoke-ptr", &invocationPayload{Model: "m2", Tokens: 1})
	typed.Results["invoke"].Elapsed = 250 * time.Millisecond

	testCases := []struct {
		description string
		context     *execution.Context
	}{
		{description: "empty context", context: execution.New("flow-0", "run-0", "")},
		{description: "cyclic node results", context: cyclic},
		{description: "typed payloads", context: typed},
		{
			description: "large artifact blob",
			context: func() *execution.Context {
				ctx := execution.New("flow-3", "run-3", "")
				ctx.Artifacts["report"] = large
				return ctx
			}(),
		},
		{
			description: "injected outcome",
			context: func() *execution.Context {
				ctx := execution.New("flow-4", "run-4", "")
				ctx.PausedNodeID = "gate"
				ctx.Outcome = &execution.Outcome{NodeID: "gate", Status: "approved", ResolvedBy: "alice", ResolvedAt: time.Unix(1700000000, 0).UTC()}
				return ctx
			}(),
		},
	}

	for _, testCase := range testCases {
		data, err := codec.Encode(testCase.context)
		if !assert.Nil(t, err, testCase.description) {
			continue
		}
		actual, err := codec.Decode(data)
		if !assert.Nil(t, err, testCase.description) {
			continue
		}
		assert.Equal(t, testCase.context, actual, testCase.description)
	}
}

func TestService_RoundTrip_RestoresIdentity(t *testing.T) {
	codec := New()
	ctx := execution.New("flow", "run", "")
	a := ctx.AddResult("a", nil)
	b := ctx.AddResult("b", nil, a)
	a.Upstream = append(a.Upstream, b)

	data, err := codec.Encode(ctx)
	assert.Nil(t, err)
	decoded, err := codec.Decode(data)
	assert.Nil(t, err)

	// shared references decode to the same instance, preserving the cycle
	assert.True(t, decoded.Result("b").Upstream[0] == decoded.Result("a"))
	assert.True(t, decoded.Result("a").Upstream[0] == decoded.Result("b"))
}

type foreignPayload struct{ Conn *bytes.Buffer }

func TestService_Encode_Unencodable(t *testing.T) {
	codec := New()

	unregistered := execution.New("flow", "run", "")
	unregistered.AddResult("n1", foreignPayload{})

	orphanUpstream := execution.New("flow", "run", "")
	orphan := &execution.NodeResult{NodeID: "ghost"}
	orphanUpstream.AddResult("n1", nil, orphan)

	// integers are not plain values: json.Unmarshal would hand them back as
	// float64, silently corrupting anything above 2^53
	bareInt := execution.New("flow", "run", "")
	bareInt.AddResult("n1", int64(1<<60+1))

	nestedInt := execution.New("flow", "run", "")
	nestedInt.AddResult("n1", map[string]interface{}{"count": 7})

	testCases := []struct {
		description string
		context     *execution.Context
	}{
		{description: "nil context", context: nil},
		{description: "unregistered payload type", context: unregistered},
		{description: "upstream outside result table", context: orphanUpstream},
		{description: "bare integer payload", context: bareInt},
		{description: "integer nested in a map payload", context: nestedInt},
	}
	for _, testCase := range testCases {
		_, err := codec.Encode(testCase.context)
		assert.True(t, errors.Is(err, ErrUnencodable), testCase.description)
	}
}

type counterPayload struct {
	Sequence int64 `json:"sequence"`
}

func TestService_RoundTrip_LargeIntegers(t *testing.T) {
	codec := New(WithTypes(counterPayload{}))
	ctx := execution.New("flow", "run", "")
	ctx.AddResult("count", counterPayload{Sequence: 1<<60 + 1})

	data, err := codec.Encode(ctx)
	assert.Nil(t, err)
	decoded, err := codec.Decode(data)
	assert.Nil(t, err)

	// registered types unmarshal digits straight into the int64 field, so
	// values beyond float64's 2^53 integer range survive untouched
	assert.Equal(t, counterPayload{Sequence: 1<<60 + 1}, decoded.Result("count").Payload)
}

func TestService_Decode_Corrupted(t *testing.T) {
	codec := New()
	_, err := codec.Decode([]byte(`not json`))
	assert.NotNil(t, err)
	_, err = codec.Decode([]byte(`{"version":99}`))
	assert.NotNil(t, err)
	_, err = codec.Decode([]byte(`{"version":1,"results":[{"nodeId":"a","upstream":["missing"]}]}`))
	assert.NotNil(t, err)
}
