// Package id provides centralized ID generation for the control plane.
//
// IDs are prefixed ULIDs:
//   - Lexicographic sortability: pipeline sessions sort by start time
//   - Prefixed types: sess_*, sub_*, view_*, req_* make logs readable
//   - Type safety: separate types keep a subscriber id out of a session slot
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SessionID identifies one pipeline process session
type SessionID string

// SubscriberID identifies one state stream subscription
type SubscriberID string

// ViewerID identifies one media stream viewer
type ViewerID string

// RequestID identifies an API request or trace span
type RequestID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	SessionPrefix    = "sess"
	SubscriberPrefix = "sub"
	ViewerPrefix     = "view"
	RequestPrefix    = "req"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewSessionID generates a new pipeline session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewSubscriberID generates a new state subscriber ID
func NewSubscriberID() SubscriberID {
	return SubscriberID(Default().GenerateWithPrefix(SubscriberPrefix))
}

// NewViewerID generates a new media viewer ID
func NewViewerID() ViewerID {
	return ViewerID(Default().GenerateWithPrefix(ViewerPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SessionID) String() string    { return string(id) }
func (id SubscriberID) String() string { return string(id) }
func (id ViewerID) String() string     { return string(id) }
func (id RequestID) String() string    { return string(id) }
