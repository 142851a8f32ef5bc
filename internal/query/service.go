// Package query serves read-only views over the current job bucket.
package query

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cuongbtq/jobfeed/internal/domain"
)

// Snapshotter yields the jobs of the active bucket
type Snapshotter interface {
	Current(ctx context.Context) []domain.Job
}

// Criteria restricts Filter results. Empty fields are not applied.
type Criteria struct {
	Location        string `json:"location"`
	EmploymentType  string `json:"employmentType"`
	ExperienceLevel string `json:"experienceLevel"`
}

// CriteriaFromMap reads the criteria keys used by API clients; unknown keys
// are ignored
func CriteriaFromMap(m map[string]string) Criteria {
	return Criteria{
		Location:        strings.TrimSpace(m["location"]),
		EmploymentType:  strings.TrimSpace(m["employmentType"]),
		ExperienceLevel: strings.TrimSpace(m["experienceLevel"]),
	}
}

// Matches reports whether job satisfies every non-empty criterion
func (c Criteria) Matches(job domain.Job) bool {
	if c.Location != "" && !containsFold(job.Location, c.Location) {
		return false
	}
	if c.EmploymentType != "" && !strings.EqualFold(job.EmploymentType, c.EmploymentType) {
		return false
	}
	if c.ExperienceLevel != "" && !strings.EqualFold(job.ExperienceLevel, c.ExperienceLevel) {
		return false
	}
	return true
}

// Stats summarises the current bucket
type Stats struct {
	Total      int        `json:"total_jobs"`
	Recent     int        `json:"recent_jobs"`
	LastUpdate *time.Time `json:"last_update"`
}

// Service answers job queries. It never writes to the cache.
type Service struct {
	jobs Snapshotter
	now  func() time.Time
}

// NewService creates a query service over jobs. A nil now uses time.Now.
func NewService(jobs Snapshotter, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{jobs: jobs, now: now}
}

func (s *Service) List(ctx context.Context) []domain.Job {
	return s.jobs.Current(ctx)
}

// Get returns the job with the given id; ok is false when it is not in the current bucket
func (s *Service) Get(ctx context.Context, id string) (domain.Job, bool) {
	for _, job := range s.jobs.Current(ctx) {
		if job.ID == id {
			return job, true
		}
	}
	return domain.Job{}, false
}

// Search matches keyword case-insensitively against title, description and
// skills. An empty keyword matches every job.
func (s *Service) Search(ctx context.Context, keyword string) []domain.Job {
	keyword = strings.TrimSpace(keyword)
	return s.selectJobs(ctx, func(job domain.Job) bool {
		return containsFold(job.Title, keyword) ||
			containsFold(job.Description, keyword) ||
			slices.ContainsFunc(job.Skills, func(skill string) bool {
				return containsFold(skill, keyword)
			})
	})
}

func (s *Service) Filter(ctx context.Context, c Criteria) []domain.Job {
	return s.selectJobs(ctx, c.Matches)
}

// Stats counts jobs in the current bucket. Recency is evaluated at call time;
// LastUpdate is the newest listing time, nil when no job has one.
func (s *Service) Stats(ctx context.Context) Stats {
	jobs := s.jobs.Current(ctx)
	now := s.now()

	stats := Stats{Total: len(jobs)}
	for _, job := range jobs {
		if job.IsRecent(now) {
			stats.Recent++
		}
		if job.ListedAt.IsZero() {
			continue
		}
		if stats.LastUpdate == nil || job.ListedAt.After(*stats.LastUpdate) {
			listedAt := job.ListedAt
			stats.LastUpdate = &listedAt
		}
	}
	return stats
}

func (s *Service) selectJobs(ctx context.Context, keep func(domain.Job) bool) []domain.Job {
	out := []domain.Job{}
	for _, job := range s.jobs.Current(ctx) {
		if keep(job) {
			out = append(out, job)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
