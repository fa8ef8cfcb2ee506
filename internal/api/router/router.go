package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/batch-scheduler/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options holds what the router needs beyond the handler dependencies
type Options struct {
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer

	// HealthCheck backs /health; the service reports healthy when nil
	HealthCheck func(ctx context.Context) error
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps.Logger, opts.HealthCheck))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List registered job names
			jobs.GET("", jobHandler.ListJobs)

			// POST /api/v1/jobs/:job_name/executions - Launch a job and wait for it
			jobs.POST("/:job_name/executions", jobHandler.LaunchJob)

			// GET /api/v1/jobs/:job_name/executions/latest - Latest execution of an instance
			jobs.GET("/:job_name/executions/latest", jobHandler.GetLatestExecution)
		}

		executions := v1.Group("/executions")
		{
			// GET /api/v1/executions - List executions with filtering and pagination
			executions.GET("", jobHandler.ListExecutions)

			// GET /api/v1/executions/:execution_id - Get execution details
			executions.GET("/:execution_id", jobHandler.GetExecution)
		}
	}

	return r
}

func healthHandler(logger *slog.Logger, check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(c.Request.Context()); err != nil {
				logger.Error("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "batch-service",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "batch-service",
		})
	}
}
