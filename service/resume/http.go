package resume

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/viant/pausor/codec"
	"github.com/viant/pausor/runtime/execution"
)

// HTTPEngine hands execution contexts to a remote engine by POSTing the
// encoded snapshot (outcome included) to a callback endpoint. Any 2xx
// response counts as an accepted handoff.
type HTTPEngine struct {
	endpoint string
	client   *http.Client
	codec    *codec.Service
}

// HTTPOption customises the HTTP engine.
type HTTPOption func(*HTTPEngine)

// WithClient overrides the HTTP client.
func WithClient(client *http.Client) HTTPOption {
	return func(e *HTTPEngine) {
		e.client = client
	}
}

// WithEngineCodec overrides the snapshot codec used on the wire.
func WithEngineCodec(aCodec *codec.Service) HTTPOption {
	return func(e *HTTPEngine) {
		e.codec = aCodec
	}
}

// NewHTTPEngine creates an engine posting to the supplied endpoint.
func NewHTTPEngine(endpoint string, options ...HTTPOption) *HTTPEngine {
	ret := &HTTPEngine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, option := range options {
		option(ret)
	}
	if ret.codec == nil {
		ret.codec = codec.New()
	}
	return ret
}

// Resume posts the execution context to the callback endpoint.
func (e *HTTPEngine) Resume(ctx context.Context, execCtx *execution.Context) error {
	data, err := e.codec.Encode(execCtx)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := e.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("engine returned status %v", response.StatusCode)
	}
	return nil
}

var _ Engine = (*HTTPEngine)(nil)
