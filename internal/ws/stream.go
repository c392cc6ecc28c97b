// Package ws streams event channel deliveries to syscall-layer clients over
// WebSocket, polling the registry on the subscriber's behalf.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/helixos/kernel-ipc/internal/ipc"
	"github.com/helixos/kernel-ipc/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	defaultPollInterval = 100 * time.Millisecond
	minPollInterval     = 10 * time.Millisecond
)

// Handler manages event-stream WebSocket connections.
type Handler struct {
	mgr *ipc.Manager
	log *logging.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(mgr *ipc.Manager, log *logging.Logger) *Handler {
	return &Handler{mgr: mgr, log: log}
}

type subscribeRequest struct {
	ChannelID  uint64 `json:"channel_id"`
	Subscriber uint64 `json:"subscriber"`
	Mask       uint32 `json:"mask"`
	PollMillis int    `json:"poll_ms"`
}

// HandleConnection upgrades the connection, registers the client's mask and
// forwards its channel deliveries until the client disconnects. Draining
// here consumes events like any other Events call: single delivery still
// holds.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var req subscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.log.Warn("websocket subscribe read failed", zap.Error(err))
		return
	}

	if req.Mask != 0 {
		if err := h.mgr.Subscribe(req.ChannelID, req.Subscriber, req.Mask); err != nil {
			_ = conn.WriteJSON(gin.H{"error": err.Error(), "code": ipc.Code(err)})
			return
		}
	}

	interval := defaultPollInterval
	if req.PollMillis > 0 {
		interval = time.Duration(req.PollMillis) * time.Millisecond
		if interval < minPollInterval {
			interval = minPollInterval
		}
	}

	_ = conn.WriteJSON(gin.H{"type": "subscribed", "channel_id": req.ChannelID})

	// Reader goroutine: its exit signals client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			events, err := h.mgr.ChannelEvents(req.ChannelID, req.Subscriber)
			if err != nil {
				_ = conn.WriteJSON(gin.H{"error": err.Error(), "code": ipc.Code(err)})
				return
			}
			for _, ev := range events {
				if err := conn.WriteJSON(gin.H{"type": "event", "event": ev}); err != nil {
					return
				}
			}
		}
	}
}
