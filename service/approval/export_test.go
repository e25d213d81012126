package approval

import "github.com/viant/pausor/service/state"

// Test seams for the external approval_test package, which cannot reach
// unexported identifiers directly.

// SystemActor exposes the actor recorded on sweep-driven transitions.
const SystemActor = systemActor

// SetStateBackend swaps the service's state backend.
func (s *Service) SetStateBackend(backend state.Backend) {
	s.state = backend
}
