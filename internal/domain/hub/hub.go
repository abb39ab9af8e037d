package hub

import (
	"sync"

	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
	"go.uber.org/zap"
)

const defaultQueueSize = 64

// Options configures a Hub
type Options struct {
	// QueueSize bounds each subscriber's pending deltas
	QueueSize int
	Logger    *zap.Logger
}

// Stats summarises hub activity
type Stats struct {
	Seq         uint64 `json:"seq"`
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
	Rejected    uint64 `json:"rejected"`
}

// Hub serializes state mutations and fans out deltas
type Hub struct {
	mu       sync.Mutex
	state    State                             // Protected by mu
	seq      uint64                            // Protected by mu
	subs     map[id.SubscriberID]*Subscription // Protected by mu
	closed   bool                              // Protected by mu
	dropped  uint64                            // Protected by mu
	rejected uint64                            // Protected by mu

	queueSize int
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// New creates a hub holding an empty state
func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		state:     NewState(),
		subs:      make(map[id.SubscriberID]*Subscription),
		queueSize: opts.QueueSize,
		logger:    logger,
	}
}

// WithMetrics adds metrics tracking to the hub
func (h *Hub) WithMetrics(metrics *monitoring.Metrics) *Hub {
	h.metrics = metrics
	return h
}

// Apply validates value for key, stores it and broadcasts the delta
func (h *Hub) Apply(key Key, value any) (Delta, error) {
	v, err := Normalize(key, value)
	if err != nil {
		h.reject(err)
		return Delta{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commitLocked(key, v)
}

// ApplyJSON decodes raw into the type of key and applies it
func (h *Hub) ApplyJSON(key Key, raw []byte) (Delta, error) {
	v, err := Decode(key, raw)
	if err != nil {
		h.reject(err)
		return Delta{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commitLocked(key, v)
}

// Update applies fn to a copy of the current value of key atomically. The
// returned value goes through the key's policy like Apply.
func (h *Hub) Update(key Key, fn func(current any) (any, error)) (Delta, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, err := h.state.Get(key)
	if err != nil {
		h.rejectLocked(err)
		return Delta{}, err
	}
	next, err := fn(current)
	if err != nil {
		return Delta{}, err
	}
	v, err := Normalize(key, next)
	if err != nil {
		h.rejectLocked(err)
		return Delta{}, err
	}
	return h.commitLocked(key, v)
}

// MergeMetrics writes counters into the metrics key
func (h *Hub) MergeMetrics(counters map[string]int64) (Delta, error) {
	return h.Apply(KeyMetrics, counters)
}

// AddCounters increments counters atomically
func (h *Hub) AddCounters(increments map[string]int64) (Delta, error) {
	return h.Update(KeyMetrics, func(current any) (any, error) {
		metrics := current.(map[string]int64)
		out := make(map[string]int64, len(increments))
		for name, n := range increments {
			out[name] = metrics[name] + n
		}
		return out, nil
	})
}

// Snapshot returns a deep copy of the current state
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{Seq: h.seq, State: h.state.Clone()}
}

// Subscribe atomically pairs a snapshot with a delta stream that starts
// with the first mutation after it.
func (h *Hub) Subscribe() (Snapshot, *Subscription, error) {
	sub := &Subscription{
		id: id.NewSubscriberID(),
		ch: make(chan Delta, h.queueSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return Snapshot{}, nil, ErrClosed
	}
	snap := Snapshot{Seq: h.seq, State: h.state.Clone()}
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetHubSubscribers(count)
	}
	h.logger.Debug("State subscriber joined",
		zap.String("subscriber_id", sub.id.String()),
		zap.Uint64("seq", snap.Seq))
	return snap, sub, nil
}

// Unsubscribe releases a subscription. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, ok := h.subs[sub.id]
	if ok {
		delete(h.subs, sub.id)
		close(sub.ch)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if ok {
		if h.metrics != nil {
			h.metrics.SetHubSubscribers(count)
		}
		h.logger.Debug("State subscriber left", zap.String("subscriber_id", sub.id.String()))
	}
}

// Restore applies a previously persisted state key by key. Each key is
// broadcast like a normal mutation.
func (h *Hub) Restore(st State) error {
	values := map[Key]any{
		KeyInterfaces:        st.Interfaces,
		KeySelectedInterface: st.SelectedInterface,
		KeyMonitorModeActive: st.MonitorModeActive,
		KeyNetworks:          st.Networks,
		KeyClients:           st.Clients,
		KeyHandshakes:        st.Handshakes,
		KeyMetrics:           st.Metrics,
		KeyScanning:          st.Scanning,
	}

	normalized := make(map[Key]any, len(values))
	for key, value := range values {
		v, err := Normalize(key, value)
		if err != nil {
			return err
		}
		normalized[key] = v
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range allKeys {
		if _, err := h.commitLocked(key, normalized[key]); err != nil {
			return err
		}
	}
	h.logger.Info("State restored", zap.Uint64("seq", h.seq))
	return nil
}

// Close rejects further mutations and closes every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sid, sub := range h.subs {
		delete(h.subs, sid)
		close(sub.ch)
	}
	if h.metrics != nil {
		h.metrics.SetHubSubscribers(0)
	}
}

// Stats returns activity counters
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Seq:         h.seq,
		Subscribers: len(h.subs),
		Dropped:     h.dropped,
		Rejected:    h.rejected,
	}
}

// commitLocked stores v and offers the delta to every subscriber. Offering
// never blocks; a full queue drops that subscriber.
func (h *Hub) commitLocked(key Key, v any) (Delta, error) {
	if h.closed {
		return Delta{}, ErrClosed
	}

	h.state.apply(key, v)
	h.seq++
	d := Delta{Seq: h.seq, Key: key, Value: v}

	for sid, sub := range h.subs {
		select {
		case sub.ch <- d:
		default:
			sub.overflowed.Store(true)
			delete(h.subs, sid)
			close(sub.ch)
			h.dropped++
			h.logger.Warn("State subscriber fell behind, dropping",
				zap.String("subscriber_id", sid.String()),
				zap.Uint64("seq", d.Seq))
			if h.metrics != nil {
				h.metrics.IncHubDropped()
				h.metrics.SetHubSubscribers(len(h.subs))
			}
		}
	}

	if h.metrics != nil {
		h.metrics.RecordDelta(string(key))
	}
	return d, nil
}

func (h *Hub) reject(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejectLocked(err)
}

func (h *Hub) rejectLocked(err error) {
	h.rejected++
	if h.metrics != nil {
		h.metrics.RecordRejected(rejectReason(err))
	}
	h.logger.Debug("State mutation rejected", zap.Error(err))
}
