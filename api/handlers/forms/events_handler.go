package forms

import (
	"net/http"
	"time"

	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReadTimeout  = 2 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

// SubmissionEvents 订阅单个提交的审批与状态变化
// @Summary 提交事件流 (WebSocket)
// @Tags Forms
// @Security BearerAuth
// @Param form_id path string true "提交编号"
// @Router /api/forms/submissions/{form_id}/events [get]
func (h *FormsHandler) SubmissionEvents(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Event stream unavailable"})
		return
	}
	formID := c.Param("form_id")
	if _, err := h.engine.Get(c.Request.Context(), formID); err != nil {
		common.RespondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	events, cancel := h.bus.Subscribe(formID)

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	go readLoop(conn, done)

	log := logger.WithContext(c.Request.Context())
	_ = conn.WriteJSON(gin.H{"type": "connected", "form_id": formID})
	defer func() {
		cancel()
		_ = conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug("推送提交事件失败", zap.String("form_id", formID), zap.Error(err))
				return
			}
		}
	}
}

func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
