package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/delivery/http/middleware"
	"github.com/sanderdlm/betascrubber/internal/usecase"
)

// RouterDeps holds everything the HTTP layer needs.
type RouterDeps struct {
	SubmitUC     *usecase.SubmitJobUsecase
	GetJobUC     *usecase.GetJobUsecase
	ListFramesUC *usecase.ListFramesUsecase
	SelectUC     *usecase.SelectFramesUsecase
	RecentUC     *usecase.RecentJobsUsecase
	PollUC       *usecase.PollStatusUsecase
	HealthChecks map[string]HealthCheck
	Logger       *zap.Logger

	// MediaRoot is the local store root served under MediaPath. Empty
	// disables media serving, as frames then live in object storage.
	MediaRoot string
	MediaPath string

	RateLimitPerMin int
	MaxBodyBytes    int64
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.MediaRoot != "" {
		media := NewMediaHandler(deps.MediaRoot)
		router.GET(deps.MediaPath+"/:dir/:file", media.Serve)
		router.HEAD(deps.MediaPath+"/:dir/:file", media.Serve)
	}

	v1 := router.Group("/api/v1")
	{
		// Health check (no rate limiting)
		healthHandler := NewHealthHandler(deps.HealthChecks, deps.Logger)
		v1.GET("/health", healthHandler.Health)

		// Long-lived status streams
		wsHandler := NewWebSocketHandler(deps.PollUC, deps.Logger)
		v1.GET("/jobs/:id/stream", wsHandler.Stream)
		eventsHandler := NewEventsHandler(deps.PollUC, deps.Logger)
		v1.GET("/events", eventsHandler.Stream)

		jobHandler := NewJobHandler(deps, deps.Logger)
		jobs := v1.Group("/jobs")
		jobs.Use(middleware.RateLimiter(deps.RateLimitPerMin))
		jobs.Use(middleware.BodySizeLimit(deps.MaxBodyBytes))
		{
			jobs.POST("", jobHandler.Submit)
			jobs.GET("/recent", jobHandler.Recent)
			jobs.GET("/:id", jobHandler.GetByID)
			jobs.GET("/:id/status", jobHandler.Status)
			jobs.GET("/:id/frames", jobHandler.Frames)
			jobs.POST("/:id/selection", jobHandler.Select)
		}
	}

	return router
}
