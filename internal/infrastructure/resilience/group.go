package resilience

import (
	"sort"
	"sync"
)

// Group hands out one breaker per key, created on first use with shared settings
type Group struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// BreakerStatus is a point-in-time view of one breaker
type BreakerStatus struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Counts Counts `json:"counts"`
}

// NewGroup creates a breaker group
func NewGroup(settings Settings) *Group {
	return &Group{
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = New(key, g.settings)
		g.breakers[key] = b
	}
	return b
}

// Status returns every breaker ordered by name
func (g *Group) Status() []BreakerStatus {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.Unlock()

	out := make([]BreakerStatus, len(breakers))
	for i, b := range breakers {
		out[i] = BreakerStatus{Name: b.Name(), State: b.State().String(), Counts: b.Counts()}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
