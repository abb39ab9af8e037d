package supervisor

import (
	"time"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
)

// State is the lifecycle state of a session
type State string

const (
	StateStarting    State = "starting"
	StateStreaming   State = "streaming"
	StateTerminating State = "terminating"
	StateClosed      State = "closed"
)

// Source describes where a pipeline reads from
type Source struct {
	URI string `json:"uri"`
}

// SessionInfo is a point-in-time view of a session
type SessionInfo struct {
	ID           id.SessionID `json:"id"`
	NodeID       string       `json:"node_id"`
	Source       Source       `json:"source"`
	State        State        `json:"state"`
	PID          int          `json:"pid"`
	StartedAt    time.Time    `json:"started_at"`
	LastExitCode *int         `json:"last_exit_code,omitempty"`
}

// EventKind identifies a lifecycle transition
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventStreaming EventKind = "streaming"
	EventClosed    EventKind = "closed"
)

// Reason explains why a session closed
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonCrash      Reason = "crash"
	ReasonTimeout    Reason = "timeout"
	ReasonSuperseded Reason = "superseded"
	ReasonRequested  Reason = "requested"
)

// Event is emitted on every lifecycle transition
type Event struct {
	NodeID    string       `json:"nodeId"`
	SessionID id.SessionID `json:"sessionId"`
	Event     EventKind    `json:"event"`
	Reason    Reason       `json:"reason,omitempty"`
	ExitCode  *int         `json:"exitCode,omitempty"`
	At        time.Time    `json:"at"`
}

// Sink receives output chunks. The slice is owned by the callee.
type Sink func(nodeID string, chunk []byte)

// EventHandler receives lifecycle events
type EventHandler func(Event)
