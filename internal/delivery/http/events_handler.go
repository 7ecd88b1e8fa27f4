package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/usecase"
)

// EventsHandler streams job status updates as server-sent events.
type EventsHandler struct {
	pollUC *usecase.PollStatusUsecase
	logger *zap.Logger
}

func NewEventsHandler(pollUC *usecase.PollStatusUsecase, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{pollUC: pollUC, logger: logger}
}

// Stream handles GET /api/v1/events?processId=<id>. Each status read is
// sent as a "status" event; the stream ends after a terminal status or a
// timeout event.
func (h *EventsHandler) Stream(c *gin.Context) {
	id := c.Query("processId")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "processId is required"})
		return
	}

	if !identity.Valid(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidIdentity.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	err := h.pollUC.Watch(c.Request.Context(), id, func(u domain.PollUpdate) error {
		c.SSEvent("status", u)
		c.Writer.Flush()
		return nil
	})
	if err == nil {
		return
	}
	h.logger.Debug("Event stream ended", zap.String("job_id", id), zap.Error(err))
}
