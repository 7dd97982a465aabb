package handler

import (
	"fmt"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/notify"
	"github.com/gin-gonic/gin"
)

// heartbeatInterval SSE 保活间隔
const heartbeatInterval = 30 * time.Second

// SSEHandler 库存变更推送
type SSEHandler struct {
	hub *notify.Hub
}

func NewSSEHandler(hub *notify.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Stream SSE 连接
// GET /api/v1/sse/events?token=xxx
func (h *SSEHandler) Stream(c *gin.Context) {
	userID := GetUserID(c)
	clientID := fmt.Sprintf("%s_%d", userID, time.Now().UnixNano())

	client := &notify.Client{
		ID:     clientID,
		UserID: userID,
		Events: make(chan notify.Event, 64),
	}
	h.hub.Register(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString("event: connected\ndata: {\"client_id\":\"" + clientID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			h.hub.Unregister(clientID)
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.EventType, event.Data)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
