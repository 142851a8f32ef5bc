package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobfeed/internal/api/dto"
	"github.com/cuongbtq/jobfeed/internal/domain"
	"github.com/cuongbtq/jobfeed/internal/ingest"
	"github.com/cuongbtq/jobfeed/internal/query"
)

// ListJobs handles GET /api/v1/jobs
// Returns the current bucket, paginated when page_size is given
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	after, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs := h.jobs.List(c.Request.Context())
	total := len(jobs)

	var next string
	if req.PageSize > 0 {
		req.PageSize = min(req.PageSize, 100)
		jobs, next = paginate(jobs, after, req.PageSize)
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		Total:      total,
		NextCursor: next,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, ok := h.jobs.Get(c.Request.Context(), jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// SearchJobs handles GET /api/v1/jobs/search?keyword=
func (h *JobHandler) SearchJobs(c *gin.Context) {
	var req dto.SearchJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "keyword is required",
		})
		return
	}

	c.JSON(http.StatusOK, h.jobs.Search(c.Request.Context(), req.Keyword))
}

// FilterJobs handles POST /api/v1/jobs/filter
// Body is a JSON object with any of location, employmentType, experienceLevel
func (h *JobHandler) FilterJobs(c *gin.Context) {
	var criteria map[string]string
	if err := c.ShouldBindJSON(&criteria); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	c.JSON(http.StatusOK, h.jobs.Filter(c.Request.Context(), query.CriteriaFromMap(criteria)))
}

// JobStats handles GET /api/v1/jobs/stats
func (h *JobHandler) JobStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Stats(c.Request.Context()))
}

// RefreshJobs handles POST /api/v1/jobs/refresh
// Runs one ingestion cycle and waits for it
func (h *JobHandler) RefreshJobs(c *gin.Context) {
	report, err := h.refresher.Refresh(c.Request.Context())
	if errors.Is(err, ingest.ErrSchedulerNotRunning) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Ingestion is not running",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to refresh jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to refresh jobs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Jobs refreshed",
		"report":  report,
	})
}

// MatchJob handles POST /api/v1/jobs/:job_id/match
// Returns the job annotated with its match against the given resume
func (h *JobHandler) MatchJob(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.MatchJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "resume_id is required",
		})
		return
	}

	job, err := h.analysis.MatchJob(c.Request.Context(), req.ResumeID, jobID)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	case errors.Is(err, domain.ErrResumeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resume not found"})
		return
	case err != nil:
		h.logger.Error("Failed to match job",
			slog.String("job_id", jobID),
			slog.String("resume_id", req.ResumeID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to match job"})
		return
	}

	c.JSON(http.StatusOK, job)
}
