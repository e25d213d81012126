package idgen

import "github.com/google/uuid"

// NewFunc supplies identifiers for requests, decisions and queue messages;
// tests override it for stable fixtures.
var NewFunc = func() string { return uuid.New().String() }

// New returns a fresh identifier from NewFunc.
func New() string { return NewFunc() }
