package control

import (
	"sync"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/supervisor"
)

const defaultHistorySize = 500

// History is a thread-safe circular buffer of lifecycle events
type History struct {
	entries []supervisor.Event
	head    int
	size    int
	maxSize int
	mu      sync.RWMutex
}

// NewHistory creates a history holding at most maxSize events
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = defaultHistorySize
	}
	return &History{
		entries: make([]supervisor.Event, maxSize),
		maxSize: maxSize,
	}
}

// Add records an event, evicting the oldest when full
func (h *History) Add(ev supervisor.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = ev
	h.head = (h.head + 1) % h.maxSize
	if h.size < h.maxSize {
		h.size++
	}
}

// Recent returns up to limit events, newest first. An empty nodeID matches
// every node.
func (h *History) Recent(limit int, nodeID string) []supervisor.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > h.size {
		limit = h.size
	}

	result := make([]supervisor.Event, 0, limit)
	for i := 0; i < h.size && len(result) < limit; i++ {
		idx := (h.head - 1 - i + h.maxSize) % h.maxSize
		ev := h.entries[idx]
		if nodeID == "" || ev.NodeID == nodeID {
			result = append(result, ev)
		}
	}
	return result
}

// Len returns the number of stored events
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}
