// Package idgen wraps UUID generation behind a stubbable function so tests
// can produce deterministic request and message identifiers. Callers treat
// identifiers as opaque strings.
package idgen
