package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/utils"
)

// MediaStream forwards the pipeline output of one node as binary frames. A
// viewer that falls behind is disconnected with CloseTryAgainLater.
func (h *Handler) MediaStream(c *gin.Context) {
	nodeID := c.Param("node")
	if err := utils.ValidateNodeID(nodeID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	defer h.track(streamMedia)()

	logger := h.logger.With(
		zap.String("conn_id", uuid.NewString()),
		zap.String("stream", streamMedia),
		zap.String("node_id", nodeID))

	viewer := h.relay.Attach(nodeID)
	if viewer == nil {
		h.closeWith(conn, websocket.CloseGoingAway, "media relay closed")
		return
	}
	defer h.relay.Detach(viewer)
	logger.Debug("Media viewer connected", zap.String("viewer_id", viewer.ID().String()))

	done := h.readPump(conn, nil)
	ping := time.NewTicker(h.pingPeriod())
	defer ping.Stop()

	for {
		select {
		case <-done:
			logger.Debug("Media viewer disconnected")
			return

		case <-ping.C:
			if err := h.writePing(conn); err != nil {
				return
			}

		case chunk, ok := <-viewer.C():
			if !ok {
				if viewer.Overflowed() {
					logger.Info("Media viewer fell behind, disconnecting")
					h.closeWith(conn, websocket.CloseTryAgainLater, "viewer fell behind")
				} else {
					h.closeWith(conn, websocket.CloseGoingAway, "media relay closed")
				}
				return
			}
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				logger.Debug("Media write failed", zap.Error(err))
				return
			}
			h.recordMessage("out", "chunk")
		}
	}
}
