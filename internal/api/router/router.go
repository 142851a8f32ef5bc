package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/jobfeed/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "jobfeed-api",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	resumeHandler := handler.NewResumeHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/stats", jobHandler.JobStats)
			jobs.GET("/search", jobHandler.SearchJobs)
			jobs.POST("/filter", jobHandler.FilterJobs)
			jobs.POST("/refresh", jobHandler.RefreshJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/match", jobHandler.MatchJob)
		}

		resumes := v1.Group("/resumes")
		{
			resumes.GET("", resumeHandler.ListResumes)
			resumes.POST("", resumeHandler.SaveResume)
			resumes.DELETE("/:resume_id", resumeHandler.DeleteResume)
		}

		v1.POST("/analyze", resumeHandler.Analyze)
	}

	return r
}
