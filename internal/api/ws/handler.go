package ws

import (
	"net/http"
	"slices"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/media"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
)

const (
	streamState = "state"
	streamMedia = "media"

	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	maxClientMessage    = 4096
)

// Options configures a Handler
type Options struct {
	// Origins allowed to open sockets; "*" or empty allows any
	Origins      []string
	WriteTimeout time.Duration
	PongWait     time.Duration
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// Handler serves the state and media viewer sockets
type Handler struct {
	hub          *hub.Hub
	relay        *media.Relay
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pongWait     time.Duration
	metrics      *monitoring.Metrics
	logger       *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(h *hub.Hub, relay *media.Relay, opts Options) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := opts.Origins
	return &Handler{
		hub:   h,
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 || slices.Contains(origins, "*") {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, origin)
			},
		},
		writeTimeout: opts.WriteTimeout,
		pongWait:     opts.PongWait,
		metrics:      opts.Metrics,
		logger:       logger,
	}
}

// Register mounts the socket routes on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/stream", h.StateStream)
	r.GET("/media/:node/stream", h.MediaStream)
}

// pingPeriod must stay below pongWait so a healthy peer never times out
func (h *Handler) pingPeriod() time.Duration {
	return h.pongWait * 9 / 10
}

func (h *Handler) writeJSON(conn *websocket.Conn, msgType string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	h.recordMessage("out", msgType)
	return nil
}

func (h *Handler) writePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout))
}

// closeWith sends a close frame; the peer may already be gone
func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}

// readPump consumes client frames until the connection fails. Text frames
// are handed to onText; the returned channel closes when reading stops.
func (h *Handler) readPump(conn *websocket.Conn, onText func([]byte)) <-chan struct{} {
	done := make(chan struct{})
	conn.SetReadLimit(maxClientMessage)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	go func() {
		defer close(done)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("WebSocket read error", zap.Error(err))
				}
				return
			}
			if kind == websocket.TextMessage && onText != nil {
				h.recordMessage("in", "text")
				onText(data)
			}
		}
	}()
	return done
}

func (h *Handler) track(stream string) func() {
	if h.metrics == nil {
		return func() {}
	}
	h.metrics.IncWSConnections(stream)
	return func() { h.metrics.DecWSConnections(stream) }
}

func (h *Handler) recordMessage(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}
