package ws

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
)

// Message types (server → client)
const (
	TypeSnapshot = "snapshot"
	TypeDelta    = "delta"
)

// TypeResync is sent by a client that wants a fresh snapshot
const TypeResync = "resync"

// SnapshotMessage carries the full state. Resync is set when it replaces a
// stream the server had to drop.
type SnapshotMessage struct {
	Type   string    `json:"type"`
	Seq    uint64    `json:"seq"`
	State  hub.State `json:"state"`
	Resync bool      `json:"resync,omitempty"`
	At     int64     `json:"timestamp"`
}

// DeltaMessage carries one applied mutation
type DeltaMessage struct {
	Type  string  `json:"type"`
	Seq   uint64  `json:"seq"`
	Key   hub.Key `json:"key"`
	Value any     `json:"value"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// StateStream sends a snapshot followed by every delta. A viewer that falls
// behind is sent a fresh snapshot; a viewer can ask for one with
// {"type":"resync"}.
func (h *Handler) StateStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	defer h.track(streamState)()

	connID := uuid.NewString()
	logger := h.logger.With(zap.String("conn_id", connID), zap.String("stream", streamState))
	logger.Debug("State viewer connected", zap.String("remote", c.ClientIP()))

	resync := make(chan struct{}, 1)
	done := h.readPump(conn, func(data []byte) {
		var msg clientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return
		}
		if msg.Type == TypeResync {
			select {
			case resync <- struct{}{}:
			default:
			}
		}
	})

	snap, sub, err := h.hub.Subscribe()
	if err != nil {
		h.closeWith(conn, websocket.CloseGoingAway, "state hub closed")
		return
	}
	defer func() { h.hub.Unsubscribe(sub) }()

	if err := h.sendSnapshot(conn, snap, false); err != nil {
		return
	}

	ping := time.NewTicker(h.pingPeriod())
	defer ping.Stop()

	for {
		select {
		case <-done:
			logger.Debug("State viewer disconnected")
			return

		case <-ping.C:
			if err := h.writePing(conn); err != nil {
				return
			}

		case <-resync:
			h.hub.Unsubscribe(sub)
			if snap, sub, err = h.hub.Subscribe(); err != nil {
				h.closeWith(conn, websocket.CloseGoingAway, "state hub closed")
				return
			}
			if err := h.sendSnapshot(conn, snap, true); err != nil {
				return
			}

		case d, ok := <-sub.C():
			if !ok {
				if !sub.Overflowed() {
					h.closeWith(conn, websocket.CloseGoingAway, "state hub closed")
					return
				}
				logger.Info("State viewer fell behind, resyncing")
				if snap, sub, err = h.hub.Subscribe(); err != nil {
					h.closeWith(conn, websocket.CloseGoingAway, "state hub closed")
					return
				}
				if err := h.sendSnapshot(conn, snap, true); err != nil {
					return
				}
				continue
			}
			msg := DeltaMessage{Type: TypeDelta, Seq: d.Seq, Key: d.Key, Value: d.Value}
			if err := h.writeJSON(conn, TypeDelta, msg); err != nil {
				logger.Debug("State write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) sendSnapshot(conn *websocket.Conn, snap hub.Snapshot, resync bool) error {
	return h.writeJSON(conn, TypeSnapshot, SnapshotMessage{
		Type:   TypeSnapshot,
		Seq:    snap.Seq,
		State:  snap.State,
		Resync: resync,
		At:     time.Now().Unix(),
	})
}
