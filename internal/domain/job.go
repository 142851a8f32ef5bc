package domain

import (
	"slices"
	"time"
)

// RecentWindow is how long after posting a job still counts as recent
const RecentWindow = 24 * time.Hour

// Job is a job posting as delivered by the upstream scraper.
// Field names on the wire follow the producer's JSON.
type Job struct {
	ID              string    `json:"id"`
	Title           string    `json:"title,omitempty"`
	CompanyName     string    `json:"companyName,omitempty"`
	JobPostingURL   string    `json:"jobPostingUrl,omitempty"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	Skills          []string  `json:"skills"`
	EmploymentType  string    `json:"employmentType,omitempty"`
	ExperienceLevel string    `json:"experienceLevel,omitempty"`
	ListedAt        time.Time `json:"listedAt"`
	Source          string    `json:"source,omitempty"`

	// Match analysis, attached by analysis calls
	MatchScore      *float64 `json:"matchScore,omitempty"`
	MatchedKeywords []string `json:"matchedKeywords"`
	MissingKeywords []string `json:"missingKeywords"`
}

// HoursSincePosting returns whole hours elapsed since the job was listed.
// Jobs without a listing time report 0.
func (j Job) HoursSincePosting(now time.Time) int64 {
	if j.ListedAt.IsZero() {
		return 0
	}
	return int64(now.Sub(j.ListedAt) / time.Hour)
}

// IsRecent reports whether the job was listed within RecentWindow of now.
// It is derived on every call and never stored.
func (j Job) IsRecent(now time.Time) bool {
	if j.ListedAt.IsZero() {
		return false
	}
	return now.Sub(j.ListedAt) <= RecentWindow
}

// WithMatchAnalysis returns a copy of the job carrying the given analysis
func (j Job) WithMatchAnalysis(a MatchAnalysis) Job {
	score := a.Score
	j.Skills = slices.Clone(j.Skills)
	j.MatchScore = &score
	j.MatchedKeywords = slices.Clone(a.MatchedKeywords)
	j.MissingKeywords = slices.Clone(a.MissingKeywords)
	return j
}
