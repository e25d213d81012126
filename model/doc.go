// Package model contains the design-time representation of approval
// checkpoints and their timeout policies.
//
// Checkpoint definitions are typically loaded from a YAML document into the
// structures defined here; runtime state lives on the approval requests
// instantiated from them. The `condition` sub-package evaluates the boolean
// expressions gating checkpoint activation per run.
package model
