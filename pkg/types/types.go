// Package types defines the core domain model shared across blockpress.
package types

import (
	"github.com/google/uuid"
)

// RequestID uniquely identifies an async request.
type RequestID = uuid.UUID

// NewRequestID allocates a fresh request identifier.
func NewRequestID() RequestID {
	return uuid.New()
}

// RequestKind classifies whether a unit of work mutates shared state or only
// reads it. The execution layer stores it for callers' scheduling/ordering
// policy and does not interpret it further.
type RequestKind string

// Request kind constants
const (
	KindModifier RequestKind = "modifier" // work that writes to a target resource
	KindAccessor RequestKind = "accessor" // work that only reads a target resource
)

// Valid reports whether k is one of the defined request kinds.
func (k RequestKind) Valid() bool {
	return k == KindModifier || k == KindAccessor
}
