package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/usecase"
)

// JobHandler handles HTTP requests for frame extraction jobs.
type JobHandler struct {
	submitUC     *usecase.SubmitJobUsecase
	getJobUC     *usecase.GetJobUsecase
	listFramesUC *usecase.ListFramesUsecase
	selectUC     *usecase.SelectFramesUsecase
	recentUC     *usecase.RecentJobsUsecase
	pollUC       *usecase.PollStatusUsecase
	logger       *zap.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(deps RouterDeps, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		submitUC:     deps.SubmitUC,
		getJobUC:     deps.GetJobUC,
		listFramesUC: deps.ListFramesUC,
		selectUC:     deps.SelectUC,
		recentUC:     deps.RecentUC,
		pollUC:       deps.PollUC,
		logger:       logger,
	}
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	var req domain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	decision, err := h.submitUC.Execute(c.Request.Context(), req.URL)
	if err != nil {
		h.writeError(c, err, "Submit job failed")
		return
	}

	code := http.StatusOK
	if decision.Kind == domain.DecisionStarted {
		code = http.StatusAccepted
	}
	c.JSON(code, decision)
}

// GetByID handles GET /api/v1/jobs/:id
func (h *JobHandler) GetByID(c *gin.Context) {
	view, err := h.getJobUC.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Get job failed")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Status handles GET /api/v1/jobs/:id/status. A terminal status is
// reported once.
func (h *JobHandler) Status(c *gin.Context) {
	id := c.Param("id")
	status, err := h.pollUC.Current(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Get status failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": status.State,
		"detail": status.Detail,
	})
}

// Frames handles GET /api/v1/jobs/:id/frames?bucket=frames|final
func (h *JobHandler) Frames(c *gin.Context) {
	bucket := domain.Bucket(c.Query("bucket"))
	frames, err := h.listFramesUC.Execute(c.Request.Context(), c.Param("id"), bucket)
	if err != nil {
		h.writeError(c, err, "List frames failed")
		return
	}
	if bucket == "" {
		bucket = domain.BucketFrames
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     c.Param("id"),
		"bucket": bucket,
		"frames": frames,
	})
}

// Select handles POST /api/v1/jobs/:id/selection
func (h *JobHandler) Select(c *gin.Context) {
	var req domain.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	result, err := h.selectUC.Execute(c.Request.Context(), c.Param("id"), req.Frames)
	if err != nil {
		h.writeError(c, err, "Select frames failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Recent handles GET /api/v1/jobs/recent?limit=5
func (h *JobHandler) Recent(c *gin.Context) {
	limit := usecase.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs": h.recentUC.Execute(c.Request.Context(), limit),
	})
}

func (h *JobHandler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentity),
		errors.Is(err, domain.ErrInvalidBucket),
		errors.Is(err, domain.ErrNoFramesSelected),
		errors.Is(err, domain.ErrInvalidFrameName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDurationExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrMetadataFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not read video information"})
	case errors.Is(err, domain.ErrPublishFailed), errors.Is(err, domain.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("job_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
