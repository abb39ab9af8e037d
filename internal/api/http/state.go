package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/utils"
)

// GetState returns the full state with its sequence number
func (h *Handlers) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Snapshot())
}

// GetStateKey returns the value of one key
func (h *Handlers) GetStateKey(c *gin.Context) {
	key, err := hub.ParseKey(c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}

	snap := h.hub.Snapshot()
	value, err := snap.State.Get(key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"seq":   snap.Seq,
		"key":   key,
		"value": value,
	})
}

// PutStateKey applies the JSON body as the new value of a key. The metrics
// key merges; every other key is replaced.
func (h *Handlers) PutStateKey(c *gin.Context) {
	key := c.Param("key")
	if _, err := hub.ParseKey(key); err != nil {
		respondError(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxStatePayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "state payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	d, err := h.surface.ApplyState(key, body)
	if err != nil {
		h.logger.Debug("State update rejected", zap.String("key", key), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"seq": d.Seq,
		"key": d.Key,
	})
}

// SyncCaptures rescans the capture directory and merges new artifacts into
// the handshakes key
func (h *Handlers) SyncCaptures(c *gin.Context) {
	if h.captureDir == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "capture directory not configured"})
		return
	}

	added, err := h.surface.SyncCaptures(c.Request.Context(), h.captureDir)
	if err != nil {
		h.logger.Warn("Capture sync failed", zap.String("dir", h.captureDir), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"added": added,
		"seq":   h.hub.Snapshot().Seq,
	})
}
