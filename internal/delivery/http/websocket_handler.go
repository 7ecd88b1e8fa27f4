package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/usecase"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development; restrict in production
	},
}

// WebSocketHandler streams job status updates over a WebSocket.
type WebSocketHandler struct {
	pollUC *usecase.PollStatusUsecase
	logger *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(pollUC *usecase.PollStatusUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		pollUC: pollUC,
		logger: logger,
	}
}

// Stream handles GET /api/v1/jobs/:id/stream (WebSocket upgrade)
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if !identity.Valid(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidIdentity.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("job_id", id))

	// The server stops watching a hijacked connection, so a reader
	// goroutine detects the client going away.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.pollUC.Watch(ctx, id, func(u domain.PollUpdate) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(u)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("WebSocket stream ended", zap.String("job_id", id), zap.Error(err))
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
