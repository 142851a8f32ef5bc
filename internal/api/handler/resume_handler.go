package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobfeed/internal/analysis"
	"github.com/cuongbtq/jobfeed/internal/api/dto"
	"github.com/cuongbtq/jobfeed/internal/domain"
)

// SaveResume handles POST /api/v1/resumes
// Accepts resume text already extracted from the uploaded document
func (h *ResumeHandler) SaveResume(c *gin.Context) {
	var req dto.SaveResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	resume, err := h.analysis.SaveResume(c.Request.Context(), req.UserID, req.Filename, req.Text)
	if errors.Is(err, analysis.ErrEmptyResume) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Resume text is empty",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to save resume", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save resume",
		})
		return
	}

	c.JSON(http.StatusCreated, toResumeDTO(resume))
}

// ListResumes handles GET /api/v1/resumes?user_id=
// Returns the user's resumes, newest first, without their text
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	var req dto.ListResumesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id is required",
		})
		return
	}

	resumes, err := h.analysis.ListResumes(c.Request.Context(), req.UserID)
	if err != nil {
		h.logger.Error("Failed to list resumes",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list resumes",
		})
		return
	}

	items := make([]dto.ResumeDTO, len(resumes))
	for i, resume := range resumes {
		items[i] = toResumeDTO(resume)
	}

	c.JSON(http.StatusOK, dto.ListResumesResponse{
		Resumes: items,
		Total:   len(items),
	})
}

// DeleteResume handles DELETE /api/v1/resumes/:resume_id
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	resumeID := c.Param("resume_id")

	err := h.analysis.DeleteResume(c.Request.Context(), resumeID)
	if errors.Is(err, domain.ErrResumeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Resume not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete resume",
			slog.String("resume_id", resumeID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete resume",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Analyze handles POST /api/v1/analyze
func (h *ResumeHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "resume_id and job_description are required",
		})
		return
	}

	result, err := h.analysis.Analyze(c.Request.Context(), req.ResumeID, req.JobDescription)
	if errors.Is(err, domain.ErrResumeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Resume not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to analyse resume",
			slog.String("resume_id", req.ResumeID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to analyse resume",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

func toResumeDTO(resume domain.Resume) dto.ResumeDTO {
	return dto.ResumeDTO{
		ResumeID:  resume.ID,
		UserID:    resume.UserID,
		Filename:  resume.Filename,
		CreatedAt: resume.CreatedAt.Format(time.RFC3339),
	}
}
