// Package clock centralizes UTC-aware time and id generation so the rest
// of Ghillie never calls time.Now or uuid.New directly.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock yields the current instant. Production code uses Real; tests
// inject a fixed or sequenced implementation.
type Clock interface {
	Now() time.Time
}

// RealClock returns time.Now in UTC.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Frozen is a test Clock that always returns the same instant.
type Frozen struct {
	At time.Time
}

// Now returns the frozen instant.
func (f Frozen) Now() time.Time { return f.At }

// NewID returns a fresh random identifier for Gold-layer rows.
func NewID() uuid.UUID { return uuid.New() }
