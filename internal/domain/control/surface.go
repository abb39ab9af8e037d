package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/media"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/supervisor"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/utils"
)

const (
	defaultCrashThreshold = 5
	defaultQuarantine     = 30 * time.Second
)

// Notifier receives lifecycle events for delivery outside the process
type Notifier interface {
	Publish(kind string, payload any)
}

// Options configures a Surface
type Options struct {
	GracePeriod time.Duration
	ReplaceWait time.Duration
	// CrashThreshold is the number of consecutive crashes that quarantine a node
	CrashThreshold uint32
	// Quarantine is how long a quarantined node refuses new sessions
	Quarantine  time.Duration
	HistorySize int
	Notifier    Notifier
	Logger      *zap.Logger
}

// Surface routes control commands into the supervisor and the hub
type Surface struct {
	hub      *hub.Hub
	relay    *media.Relay
	sup      *supervisor.Supervisor
	breakers *resilience.Group
	history  *History
	notifier Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	settled map[id.SessionID]bool // Protected by mu; sessions whose breaker outcome was recorded
}

// New creates a surface whose supervisor publishes output to relay and
// reflects lifecycle events into h
func New(launcher supervisor.Launcher, h *hub.Hub, relay *media.Relay, opts Options) *Surface {
	if opts.CrashThreshold == 0 {
		opts.CrashThreshold = defaultCrashThreshold
	}
	if opts.Quarantine <= 0 {
		opts.Quarantine = defaultQuarantine
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Surface{
		hub:      h,
		relay:    relay,
		history:  NewHistory(opts.HistorySize),
		notifier: opts.Notifier,
		logger:   logger,
		settled:  make(map[id.SessionID]bool),
	}

	threshold := opts.CrashThreshold
	s.breakers = resilience.NewGroup(resilience.Settings{
		MaxRequests: 1,
		Timeout:     opts.Quarantine,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Node crash-loop breaker changed state",
				zap.String("node_id", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	s.sup = supervisor.New(launcher, supervisor.Options{
		GracePeriod: opts.GracePeriod,
		ReplaceWait: opts.ReplaceWait,
		Sink:        relay.Publish,
		OnEvent:     s.handleEvent,
		Logger:      logger,
	})
	return s
}

// WithMetrics adds metrics tracking to the supervisor
func (s *Surface) WithMetrics(metrics *monitoring.Metrics) *Surface {
	s.sup.WithMetrics(metrics)
	return s
}

// EstablishSession starts or replaces the pipeline for nodeID
func (s *Surface) EstablishSession(ctx context.Context, nodeID string, src supervisor.Source) (supervisor.SessionInfo, error) {
	if err := utils.ValidateNodeID(nodeID); err != nil {
		return supervisor.SessionInfo{}, err
	}
	if err := utils.ValidateSourceURI(src.URI); err != nil {
		return supervisor.SessionInfo{}, err
	}

	breaker := s.breakers.Get(nodeID)
	if err := breaker.Allow(); err != nil {
		return supervisor.SessionInfo{}, &QuarantineError{NodeID: nodeID, RetryAfter: breaker.RetryAfter()}
	}

	info, err := s.sup.Establish(ctx, nodeID, src)
	if err != nil {
		// Only a failed spawn counts against the node
		breaker.Record(!errors.Is(err, supervisor.ErrSpawnFailure))
		return supervisor.SessionInfo{}, err
	}
	return info, nil
}

// EstablishNode starts the pipeline for an inventory node
func (s *Surface) EstablishNode(ctx context.Context, node catalog.Node) (supervisor.SessionInfo, error) {
	return s.EstablishSession(ctx, node.ID, supervisor.Source{URI: node.Source()})
}

// Autostart establishes every node flagged for autostart. Failures are
// logged and skipped; the number of started sessions is returned.
func (s *Surface) Autostart(ctx context.Context, nodes []catalog.Node) int {
	started := 0
	for _, n := range nodes {
		if _, err := s.EstablishNode(ctx, n); err != nil {
			s.logger.Warn("Autostart failed", zap.String("node_id", n.ID), zap.Error(err))
			continue
		}
		started++
	}
	return started
}

// TerminateSession stops the pipeline for nodeID. It reports whether a
// session existed.
func (s *Surface) TerminateSession(nodeID string) bool {
	return s.sup.Terminate(nodeID)
}

// Session returns the live session for nodeID
func (s *Surface) Session(nodeID string) (supervisor.SessionInfo, bool) {
	return s.sup.Get(nodeID)
}

// Sessions lists live sessions ordered by node id
func (s *Surface) Sessions() []supervisor.SessionInfo {
	return s.sup.List()
}

// RecentEvents returns up to limit lifecycle events, newest first
func (s *Surface) RecentEvents(limit int, nodeID string) []supervisor.Event {
	return s.history.Recent(limit, nodeID)
}

// Breakers returns the crash-loop breaker of every node seen so far
func (s *Surface) Breakers() []resilience.BreakerStatus {
	return s.breakers.Status()
}

// ResetQuarantine closes the crash-loop breaker of nodeID
func (s *Surface) ResetQuarantine(nodeID string) {
	s.breakers.Get(nodeID).Reset()
}

// ApplyState decodes raw for key, cleans over-the-air text and applies it.
// Record-bearing keys also refresh their found counters.
func (s *Surface) ApplyState(key string, raw []byte) (hub.Delta, error) {
	k, err := hub.ParseKey(key)
	if err != nil {
		return hub.Delta{}, err
	}
	v, err := hub.Decode(k, raw)
	if err != nil {
		return hub.Delta{}, err
	}
	return s.applyValue(k, v)
}

// ApplyValue applies an already typed value for key
func (s *Surface) ApplyValue(key hub.Key, value any) (hub.Delta, error) {
	v, err := hub.Normalize(key, value)
	if err != nil {
		return hub.Delta{}, err
	}
	return s.applyValue(key, v)
}

func (s *Surface) applyValue(key hub.Key, v any) (hub.Delta, error) {
	counter := ""
	count := 0
	switch val := v.(type) {
	case map[string]types.Network:
		utils.SanitizeNetworks(val)
		counter, count = types.CounterNetworksFound, len(val)
	case []types.Client:
		utils.SanitizeClients(val)
		counter, count = types.CounterClientsFound, len(val)
	case []types.Capture:
		utils.SanitizeCaptures(val)
		counter, count = types.CounterHandshakesCaptured, len(val)
	}

	d, err := s.hub.Apply(key, v)
	if err != nil {
		return hub.Delta{}, err
	}
	if counter != "" {
		if _, err := s.hub.MergeMetrics(map[string]int64{counter: int64(count)}); err != nil {
			s.logger.Warn("Failed to refresh counter", zap.String("counter", counter), zap.Error(err))
		}
	}
	return d, nil
}

// SyncCaptures scans dir for capture artifacts and adds unknown ones to the
// handshakes key. It returns the number of new artifacts.
func (s *Surface) SyncCaptures(ctx context.Context, dir string) (int, error) {
	discovered, err := catalog.ScanCaptures(ctx, dir)
	if err != nil {
		return 0, err
	}
	utils.SanitizeCaptures(discovered)

	added, total := 0, 0
	_, err = s.hub.Update(hub.KeyHandshakes, func(current any) (any, error) {
		var merged []types.Capture
		merged, added = catalog.MergeCaptures(current.([]types.Capture), discovered)
		total = len(merged)
		return merged, nil
	})
	if err != nil {
		return 0, err
	}
	if added > 0 {
		if _, err := s.hub.MergeMetrics(map[string]int64{types.CounterHandshakesCaptured: int64(total)}); err != nil {
			return added, err
		}
		s.logger.Info("Capture artifacts discovered", zap.String("dir", dir), zap.Int("added", added))
	}
	return added, nil
}

// Shutdown stops every pipeline
func (s *Surface) Shutdown(ctx context.Context) error {
	return s.sup.Shutdown(ctx)
}

// Wait blocks until every session goroutine has exited
func (s *Surface) Wait() {
	s.sup.Wait()
}

// handleEvent runs on supervisor goroutines. It must not call Establish or
// Terminate for the same node.
func (s *Surface) handleEvent(ev supervisor.Event) {
	switch ev.Event {
	case supervisor.EventStarted:
		s.updateCounters(map[string]int64{types.CounterStreamsStarted: 1})
	case supervisor.EventStreaming:
		if s.settle(ev.SessionID) {
			s.breakers.Get(ev.NodeID).Record(true)
		}
	case supervisor.EventClosed:
		inc := map[string]int64{}
		switch ev.Reason {
		case supervisor.ReasonCrash:
			inc[types.CounterStreamCrashes] = 1
		case supervisor.ReasonTimeout:
			inc[types.CounterStreamTimeouts] = 1
		}
		s.updateCounters(inc)

		if s.settle(ev.SessionID) {
			s.breakers.Get(ev.NodeID).Record(ev.Reason != supervisor.ReasonCrash)
		}
		s.forget(ev.SessionID)

		// A superseding session may already be publishing for this node
		if _, live := s.sup.Get(ev.NodeID); !live {
			s.relay.End(ev.NodeID)
		}
	}

	// Recorded after counters and breakers so readers of the history see
	// their effects.
	s.history.Add(ev)

	if s.notifier != nil {
		s.notifier.Publish("session."+string(ev.Event), ev)
	}
}

// updateCounters applies increments and the live session count as one delta.
// The count is read under the hub lock, so the last commit reflects the
// latest registry state.
func (s *Surface) updateCounters(increments map[string]int64) {
	_, err := s.hub.Update(hub.KeyMetrics, func(current any) (any, error) {
		metrics := current.(map[string]int64)
		out := map[string]int64{types.CounterStreamsActive: int64(s.sup.Len())}
		for name, n := range increments {
			out[name] = metrics[name] + n
		}
		return out, nil
	})
	if err != nil && !errors.Is(err, hub.ErrClosed) {
		s.logger.Warn("Failed to update stream counters", zap.Error(err))
	}
}

// settle reports whether this is the first outcome seen for the session
func (s *Surface) settle(sid id.SessionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled[sid] {
		return false
	}
	s.settled[sid] = true
	return true
}

func (s *Surface) forget(sid id.SessionID) {
	s.mu.Lock()
	delete(s.settled, sid)
	s.mu.Unlock()
}
