package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxLogEntries = 200

// DashboardLogEntry is one log line forwarded by the dashboard
type DashboardLogEntry struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
}

// DashboardLogRequest is a batch of dashboard log entries
type DashboardLogRequest struct {
	Source  string              `json:"source"` // "dashboard"
	Entries []DashboardLogEntry `json:"entries"`
}

// StreamLogs writes dashboard log entries into the server log
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req DashboardLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log request format"})
		return
	}
	if req.Source != "dashboard" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log source"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no log entries provided"})
		return
	}
	if len(req.Entries) > maxLogEntries {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many log entries"})
		return
	}

	logger := h.logger.Named("dashboard")
	for _, entry := range req.Entries {
		logDashboardEntry(logger, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func logDashboardEntry(logger *zap.Logger, entry DashboardLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+3)
	fields = append(fields,
		zap.String("dashboard_log_id", entry.ID),
		zap.String("source", "dashboard"),
		zap.String("dashboard_timestamp", entry.Timestamp),
	)
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn":
		logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		logger.Debug(entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}
}
