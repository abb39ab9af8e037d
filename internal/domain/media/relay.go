package media

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
	"go.uber.org/zap"
)

const defaultQueueSize = 256

// Options configures a Relay
type Options struct {
	QueueSize int
	Window    int
	Logger    *zap.Logger
}

// Viewer receives one node's chunks
type Viewer struct {
	id         id.ViewerID
	nodeID     string
	ch         chan []byte
	overflowed atomic.Bool
}

// ID returns the viewer id
func (v *Viewer) ID() id.ViewerID { return v.id }

// NodeID returns the node the viewer watches
func (v *Viewer) NodeID() string { return v.nodeID }

// C returns the chunk channel, closed on detach or overflow
func (v *Viewer) C() <-chan []byte { return v.ch }

// Overflowed reports whether the viewer was dropped for falling behind
func (v *Viewer) Overflowed() bool { return v.overflowed.Load() }

// feed is one node's fan-out. It is pruned once it has no viewers and no
// publisher, so idle node ids do not accumulate.
type feed struct {
	mu      sync.Mutex
	viewers map[id.ViewerID]*Viewer
	meter   *Meter
	live    bool // a session is publishing
	pruned  bool // removed from Relay.feeds; callers must look up again
}

// Relay fans output chunks out to viewers per node
type Relay struct {
	mu    sync.RWMutex
	feeds map[string]*feed // Protected by mu

	closed    atomic.Bool
	viewers   atomic.Int64
	queueSize int
	window    int
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// NewRelay creates a relay
func NewRelay(opts Options) *Relay {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		feeds:     make(map[string]*feed),
		queueSize: opts.QueueSize,
		window:    opts.Window,
		logger:    logger,
	}
}

// WithMetrics adds metrics tracking to the relay
func (r *Relay) WithMetrics(metrics *monitoring.Metrics) *Relay {
	r.metrics = metrics
	return r
}

// Publish offers chunk to every viewer of nodeID without blocking. The
// relay takes ownership of chunk.
func (r *Relay) Publish(nodeID string, chunk []byte) {
	f := r.lockFeed(nodeID)
	if f == nil {
		return
	}

	f.live = true
	f.meter.Observe(len(chunk), time.Now())
	for vid, v := range f.viewers {
		select {
		case v.ch <- chunk:
		default:
			v.overflowed.Store(true)
			delete(f.viewers, vid)
			close(v.ch)
			r.viewerGone()
			r.logger.Warn("Media viewer fell behind, dropping",
				zap.String("node_id", nodeID),
				zap.String("viewer_id", vid.String()))
			if r.metrics != nil {
				r.metrics.IncMediaViewersDropped()
			}
		}
	}
	f.mu.Unlock()

	if r.metrics != nil {
		r.metrics.AddMediaBytes(nodeID, len(chunk))
	}
}

// Attach registers a viewer for nodeID. It returns nil after Close.
func (r *Relay) Attach(nodeID string) *Viewer {
	v := &Viewer{
		id:     id.NewViewerID(),
		nodeID: nodeID,
		ch:     make(chan []byte, r.queueSize),
	}
	f := r.lockFeed(nodeID)
	if f == nil {
		return nil
	}
	if r.closed.Load() {
		f.mu.Unlock()
		return nil
	}
	f.viewers[v.id] = v
	f.mu.Unlock()

	n := r.viewers.Add(1)
	if r.metrics != nil {
		r.metrics.SetMediaViewers(int(n))
	}
	return v
}

// Detach removes a viewer. It is safe to call more than once.
func (r *Relay) Detach(v *Viewer) {
	if v == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.feeds[v.nodeID]
	if f == nil {
		return
	}

	f.mu.Lock()
	if _, ok := f.viewers[v.id]; ok {
		delete(f.viewers, v.id)
		close(v.ch)
		r.viewerGone()
	}
	r.pruneLocked(v.nodeID, f)
	f.mu.Unlock()
}

// End marks nodeID as no longer publishing. Its feed and statistics are
// dropped once the last viewer detaches.
func (r *Relay) End(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.feeds[nodeID]
	if f == nil {
		return
	}

	f.mu.Lock()
	f.live = false
	r.pruneLocked(nodeID, f)
	f.mu.Unlock()
}

// Feeds returns the number of tracked nodes
func (r *Relay) Feeds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.feeds)
}

// Stats returns throughput statistics for nodeID
func (r *Relay) Stats(nodeID string) (MeterStats, bool) {
	r.mu.RLock()
	f := r.feeds[nodeID]
	r.mu.RUnlock()
	if f == nil {
		return MeterStats{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meter.Stats(), true
}

// Viewers returns the number of viewers attached to nodeID
func (r *Relay) Viewers(nodeID string) int {
	r.mu.RLock()
	f := r.feeds[nodeID]
	r.mu.RUnlock()
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.viewers)
}

// Close detaches every viewer and stops accepting chunks
func (r *Relay) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.feeds {
		f.mu.Lock()
		for vid, v := range f.viewers {
			delete(f.viewers, vid)
			close(v.ch)
			r.viewerGone()
		}
		f.mu.Unlock()
	}
}

func (r *Relay) feedFor(nodeID string) *feed {
	if r.closed.Load() {
		return nil
	}
	r.mu.RLock()
	f, ok := r.feeds[nodeID]
	r.mu.RUnlock()
	if ok {
		return f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok = r.feeds[nodeID]; !ok {
		f = &feed{viewers: make(map[id.ViewerID]*Viewer), meter: NewMeter(r.window)}
		r.feeds[nodeID] = f
	}
	return f
}

// lockFeed returns the feed for nodeID with its lock held, or nil after Close
func (r *Relay) lockFeed(nodeID string) *feed {
	for {
		f := r.feedFor(nodeID)
		if f == nil {
			return nil
		}
		f.mu.Lock()
		if !f.pruned {
			return f
		}
		f.mu.Unlock()
	}
}

// pruneLocked requires r.mu and f.mu
func (r *Relay) pruneLocked(nodeID string, f *feed) {
	if f.live || len(f.viewers) > 0 || r.closed.Load() {
		return
	}
	f.pruned = true
	delete(r.feeds, nodeID)
}

func (r *Relay) viewerGone() {
	n := r.viewers.Add(-1)
	if r.metrics != nil {
		r.metrics.SetMediaViewers(int(n))
	}
}
