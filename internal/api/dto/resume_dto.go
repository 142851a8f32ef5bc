package dto

type SaveResumeRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Filename string `json:"filename"`
	Text     string `json:"text" binding:"required"`
}

type ResumeDTO struct {
	ResumeID  string `json:"resume_id"`
	UserID    string `json:"user_id"`
	Filename  string `json:"filename"`
	CreatedAt string `json:"created_at"`
}

type ListResumesRequest struct {
	UserID string `form:"user_id" binding:"required"`
}

type ListResumesResponse struct {
	Resumes []ResumeDTO `json:"resumes"`
	Total   int         `json:"total"`
}

type AnalyzeRequest struct {
	ResumeID       string `json:"resume_id" binding:"required"`
	JobDescription string `json:"job_description" binding:"required"`
}
