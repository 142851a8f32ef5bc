package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/jobfeed/internal/domain"
	"github.com/cuongbtq/jobfeed/internal/ingest"
	"github.com/cuongbtq/jobfeed/internal/query"
)

// JobQueries is the read side served by the job endpoints
type JobQueries interface {
	List(ctx context.Context) []domain.Job
	Get(ctx context.Context, id string) (domain.Job, bool)
	Search(ctx context.Context, keyword string) []domain.Job
	Filter(ctx context.Context, c query.Criteria) []domain.Job
	Stats(ctx context.Context) query.Stats
}

// Refresher runs an on-demand ingestion cycle
type Refresher interface {
	Refresh(ctx context.Context) (ingest.CycleReport, error)
}

// Analysis stores resumes and matches them against jobs
type Analysis interface {
	SaveResume(ctx context.Context, userID, filename, text string) (domain.Resume, error)
	DeleteResume(ctx context.Context, id string) error
	ListResumes(ctx context.Context, userID string) ([]domain.Resume, error)
	Analyze(ctx context.Context, resumeID, jobDescription string) (domain.MatchAnalysis, error)
	MatchJob(ctx context.Context, resumeID, jobID string) (domain.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Jobs      JobQueries
	Refresher Refresher
	Analysis  Analysis
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      JobQueries
	refresher Refresher
	analysis  Analysis
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		refresher: deps.Refresher,
		analysis:  deps.Analysis,
	}
}

// ResumeHandler handles resume and analysis HTTP requests
type ResumeHandler struct {
	logger   *slog.Logger
	analysis Analysis
}

// NewResumeHandler creates a new ResumeHandler instance
func NewResumeHandler(deps *Dependencies) *ResumeHandler {
	return &ResumeHandler{
		logger:   deps.Logger,
		analysis: deps.Analysis,
	}
}
