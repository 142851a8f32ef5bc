package dto

import "github.com/cuongbtq/jobfeed/internal/domain"

type ListJobsRequest struct {
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []domain.Job `json:"jobs"`
	Total      int          `json:"total"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type SearchJobsRequest struct {
	Keyword string `form:"keyword" binding:"required"`
}

type MatchJobRequest struct {
	ResumeID string `json:"resume_id" binding:"required"`
}
