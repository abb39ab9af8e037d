package persistence

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
)

const (
	defaultKey           = "nexus:state"
	defaultFlushInterval = 2 * time.Second
	finalFlushTimeout    = 5 * time.Second
)

// MirrorOptions configures a Mirror
type MirrorOptions struct {
	Key           string
	FlushInterval time.Duration
	Logger        *zap.Logger
}

// Mirror follows the hub and saves its state
type Mirror struct {
	hub      *hub.Hub
	store    BlobStore
	key      string
	interval time.Duration
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewMirror creates a mirror writing h's state to store
func NewMirror(h *hub.Hub, store BlobStore, opts MirrorOptions) *Mirror {
	if opts.Key == "" {
		opts.Key = defaultKey
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		hub:      h,
		store:    store,
		key:      opts.Key,
		interval: opts.FlushInterval,
		logger:   logger,
	}
}

// WithMetrics adds metrics tracking to the mirror
func (m *Mirror) WithMetrics(metrics *monitoring.Metrics) *Mirror {
	m.metrics = metrics
	return m
}

// Load returns the last saved state. The boolean is false when nothing was
// saved yet.
func (m *Mirror) Load(ctx context.Context) (hub.State, bool, error) {
	blob, err := m.store.Get(ctx, m.key)
	if errors.Is(err, ErrNotFound) {
		return hub.State{}, false, nil
	}
	if err != nil {
		return hub.State{}, false, err
	}

	rec, err := Decode(blob)
	if err != nil {
		return hub.State{}, false, err
	}
	m.logger.Info("Loaded persisted state",
		zap.Uint64("seq", rec.Seq),
		zap.Time("saved_at", rec.SavedAt),
		zap.Int("networks", len(rec.State.Networks)),
		zap.Int("handshakes", len(rec.State.Handshakes)))
	return clearTransient(rec.State), true, nil
}

// Save writes snap immediately
func (m *Mirror) Save(ctx context.Context, snap hub.Snapshot) error {
	blob, err := Encode(snap, time.Now())
	if err != nil {
		m.record("error")
		return err
	}
	if err := m.store.Set(ctx, m.key, blob); err != nil {
		m.record("error")
		return err
	}
	m.record("ok")
	m.logger.Debug("State persisted", zap.Uint64("seq", snap.Seq), zap.Int("bytes", len(blob)))
	return nil
}

// Run mirrors the hub until ctx is done or the hub closes, then writes a
// final copy. A dropped subscription is replaced with a fresh one.
func (m *Mirror) Run(ctx context.Context) error {
	snap, sub, err := m.hub.Subscribe()
	if err != nil {
		return err
	}
	defer func() { m.hub.Unsubscribe(sub) }()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	saved := snap.Seq
	flush := func(ctx context.Context) {
		if snap.Seq == saved {
			return
		}
		if err := m.Save(ctx, snap); err != nil {
			m.logger.Warn("Failed to persist state", zap.Error(err))
			return
		}
		saved = snap.Seq
	}

	for {
		select {
		case <-ctx.Done():
			m.finalFlush(flush)
			return nil

		case <-ticker.C:
			flush(ctx)

		case d, ok := <-sub.C():
			if !ok {
				if !sub.Overflowed() {
					// Hub closed
					m.finalFlush(flush)
					return nil
				}
				m.logger.Warn("State mirror fell behind, resubscribing")
				snap, sub, err = m.hub.Subscribe()
				if err != nil {
					return err
				}
				// Force a write of the fresh snapshot
				saved = 0
				continue
			}
			if err := snap.Apply(d); err != nil {
				m.logger.Warn("State mirror out of sync", zap.Error(err))
			}
		}
	}
}

func (m *Mirror) finalFlush(flush func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	flush(ctx)
}

func (m *Mirror) record(status string) {
	if m.metrics != nil {
		m.metrics.RecordPersist(status)
	}
}

// clearTransient drops values that describe the previous process rather
// than collected results
func clearTransient(st hub.State) hub.State {
	st.Interfaces = nil
	st.MonitorModeActive = false
	st.Scanning = false
	if st.Metrics != nil {
		st.Metrics[types.CounterStreamsActive] = 0
	}
	return st
}
