package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pagetools/internal/shared/id"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // the desktop shell connects from a file:// origin
	},
}

// StreamEvents upgrades to a websocket and sends one JSON message per task
// event, replaying earlier events first. The server closes the connection
// after the finished event.
func (h *Handlers) StreamEvents(c *gin.Context) {
	taskID := id.TaskID(c.Param("id"))
	if _, err := h.tasks.Status(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.String("task_id", taskID.String()), zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// the client only sends control frames; a read error means it left
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events, err := h.tasks.Subscribe(ctx, taskID)
	if err != nil {
		// expired between the lookup and the upgrade
		h.closeWith(conn, websocket.CloseGoingAway, err.Error())
		return
	}

	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(NewEventView(ev)); err != nil {
			h.log.Debug("WebSocket write failed", zap.String("task_id", taskID.String()), zap.Error(err))
			return
		}
		if ev.Type == task.EventFinished {
			h.closeWith(conn, websocket.CloseNormalClosure, "task finished")
			return
		}
	}
}

func (h *Handlers) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
