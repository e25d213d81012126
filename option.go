package pausor

import (
	"time"

	"github.com/viant/pausor/model"
	"github.com/viant/pausor/service/approval"
	"github.com/viant/pausor/service/resume"
	"github.com/viant/pausor/service/state"
)

// Option customises the engine façade.
type Option func(s *Service)

// WithStore sets the approval store; defaults to the in-memory store.
func WithStore(aStore approval.Store) Option {
	return func(s *Service) { s.store = aStore }
}

// WithStateBackend sets the snapshot backend; defaults to a mem:// fs
// backend.
func WithStateBackend(backend state.Backend) Option {
	return func(s *Service) { s.state = backend }
}

// WithCodecTypes registers payload types the snapshot codec accepts beyond
// plain JSON values.
func WithCodecTypes(types ...interface{}) Option {
	return func(s *Service) { s.codecTypes = append(s.codecTypes, types...) }
}

// WithEngine wires the workflow engine receiving resumption handoffs.
func WithEngine(engine resume.Engine) Option {
	return func(s *Service) { s.engine = engine }
}

// WithCheckpoints sets the checkpoint definitions served by the gateway.
func WithCheckpoints(checkpoints model.Checkpoints) Option {
	return func(s *Service) { s.checkpoints = checkpoints }
}

// WithSnapshotTTL bounds snapshot lifetime on backends with native expiry.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(s *Service) { s.approvalOptions = append(s.approvalOptions, approval.WithSnapshotTTL(ttl)) }
}

// WithApprovalOptions passes extra options to the approval service.
func WithApprovalOptions(options ...approval.Option) Option {
	return func(s *Service) { s.approvalOptions = append(s.approvalOptions, options...) }
}
