package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/supervisor"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/utils"
)

const maxEventLimit = 500

// EstablishRequest selects the pipeline source. An empty request falls back
// to the inventory entry for the node.
type EstablishRequest struct {
	Source     string `json:"source"`
	IP         string `json:"ip"`
	StreamPath string `json:"stream_path"`
}

// ListSessions lists live pipeline sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.surface.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns the live session of a node
func (h *Handlers) GetSession(c *gin.Context) {
	nodeID := c.Param("node")
	if err := utils.ValidateNodeID(nodeID); err != nil {
		respondError(c, err)
		return
	}

	info, ok := h.surface.Session(nodeID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for node", "node_id": nodeID})
		return
	}
	c.JSON(http.StatusOK, info)
}

// EstablishSession starts or replaces the pipeline of a node
func (h *Handlers) EstablishSession(c *gin.Context) {
	nodeID := c.Param("node")

	var req EstablishRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	src, err := h.resolveSource(nodeID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	info, err := h.surface.EstablishSession(c.Request.Context(), nodeID, src)
	if err != nil {
		h.logger.Warn("Establish failed", zap.String("node_id", nodeID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handlers) resolveSource(nodeID string, req EstablishRequest) (supervisor.Source, error) {
	switch {
	case req.Source != "":
		return supervisor.Source{URI: req.Source}, nil
	case req.IP != "":
		path := req.StreamPath
		if path == "" {
			path = h.streamPath
		}
		n := catalog.Node{ID: nodeID, IP: req.IP, StreamPath: path}
		return supervisor.Source{URI: n.Source()}, nil
	}
	if h.inventory != nil {
		if n, ok := h.inventory.Get(nodeID); ok {
			return supervisor.Source{URI: n.Source()}, nil
		}
	}
	return supervisor.Source{}, fmt.Errorf("%w: node %q is not in the inventory and no source was given", utils.ErrInvalidInput, nodeID)
}

// TerminateSession stops the pipeline of a node. The process exits in the
// background; the closed event follows.
func (h *Handlers) TerminateSession(c *gin.Context) {
	nodeID := c.Param("node")
	if err := utils.ValidateNodeID(nodeID); err != nil {
		respondError(c, err)
		return
	}

	if !h.surface.TerminateSession(nodeID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for node", "node_id": nodeID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"node_id": nodeID, "terminating": true})
}

// ListEvents returns recent lifecycle events, newest first
func (h *Handlers) ListEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	nodeID := c.Query("node")
	if nodeID != "" {
		if err := utils.ValidateNodeID(nodeID); err != nil {
			respondError(c, err)
			return
		}
	}

	events := h.surface.RecentEvents(limit, nodeID)
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// ListQuarantine returns the crash-loop breaker of every node seen so far
func (h *Handlers) ListQuarantine(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": h.surface.Breakers()})
}

// ResetQuarantine lifts the quarantine of a node
func (h *Handlers) ResetQuarantine(c *gin.Context) {
	nodeID := c.Param("node")
	if err := utils.ValidateNodeID(nodeID); err != nil {
		respondError(c, err)
		return
	}

	h.surface.ResetQuarantine(nodeID)
	h.logger.Info("Quarantine reset", zap.String("node_id", nodeID))
	c.JSON(http.StatusOK, gin.H{"node_id": nodeID, "reset": true})
}

// ListNodes returns the node inventory
func (h *Handlers) ListNodes(c *gin.Context) {
	nodes := []catalog.Node{}
	if h.inventory != nil {
		nodes = h.inventory.List()
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes": nodes,
		"count": len(nodes),
	})
}

// MediaStats returns relay throughput for a node
func (h *Handlers) MediaStats(c *gin.Context) {
	nodeID := c.Param("node")
	if err := utils.ValidateNodeID(nodeID); err != nil {
		respondError(c, err)
		return
	}

	stats, ok := h.relay.Stats(nodeID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no media for node", "node_id": nodeID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"node_id": nodeID,
		"stats":   stats,
		"viewers": h.relay.Viewers(nodeID),
	})
}
