package supervisor

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
)

// Session is the supervisor's record of one pipeline process
type Session struct {
	id        id.SessionID
	nodeID    string
	source    Source
	startedAt time.Time
	proc      Process

	mu       sync.Mutex
	state    State       // Protected by mu
	reason   Reason      // Protected by mu; termination request reason
	forced   bool        // Protected by mu
	timer    *time.Timer // Protected by mu
	exitCode *int        // Protected by mu

	done chan struct{}
}

func newSession(nodeID string, src Source, proc Process) *Session {
	return &Session{
		id:        id.NewSessionID(),
		nodeID:    nodeID,
		source:    src,
		startedAt: time.Now(),
		proc:      proc,
		state:     StateStarting,
		done:      make(chan struct{}),
	}
}

// ID returns the session id
func (s *Session) ID() id.SessionID { return s.id }

// NodeID returns the node this session serves
func (s *Session) NodeID() string { return s.nodeID }

// Done is closed after the exit handler ran
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a point-in-time copy of the session
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ID:        s.id,
		NodeID:    s.nodeID,
		Source:    s.source,
		State:     s.state,
		PID:       s.proc.PID(),
		StartedAt: s.startedAt,
	}
	if s.exitCode != nil {
		code := *s.exitCode
		info.LastExitCode = &code
	}
	return info
}

// markStreaming moves Starting to Streaming and reports whether it did
func (s *Session) markStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarting {
		return false
	}
	s.state = StateStreaming
	return true
}

// closeReason resolves the close reason once the exit code is known
func closeReason(forced bool, requested Reason, exitCode int) Reason {
	switch {
	case forced:
		return ReasonTimeout
	case requested != ReasonNone:
		return requested
	case exitCode != 0:
		return ReasonCrash
	default:
		return ReasonNone
	}
}
