// Package analysis stores resumes and computes cached resume/job match analyses.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/jobfeed/internal/domain"
	"github.com/cuongbtq/jobfeed/internal/jobcache"
)

const (
	DefaultResumeTTL   = 24 * time.Hour
	DefaultAnalysisTTL = 24 * time.Hour

	resumeKeyPrefix   = "resume:"
	analysisKeyPrefix = "analysis:"
)

// ErrEmptyResume is returned when a resume has no text after normalisation
var ErrEmptyResume = errors.New("resume text is empty")

// ResumeRepository persists resumes. Get and Delete return
// domain.ErrResumeNotFound for unknown ids.
type ResumeRepository interface {
	CreateResume(ctx context.Context, resume *domain.Resume) error
	GetResume(ctx context.Context, id string) (*domain.Resume, error)
	DeleteResume(ctx context.Context, id string) error
	ListResumes(ctx context.Context, userID string) ([]domain.Resume, error)
}

// Analyzer compares resume text with a job description
type Analyzer interface {
	Analyze(ctx context.Context, resumeText, jobDescription string) (domain.MatchAnalysis, error)
}

// JobFinder looks jobs up in the current bucket
type JobFinder interface {
	Get(ctx context.Context, id string) (domain.Job, bool)
}

// Config holds analysis service configuration
type Config struct {
	Logger      *slog.Logger
	Cache       jobcache.Store
	Resumes     ResumeRepository
	Analyzer    Analyzer
	Jobs        JobFinder
	ResumeTTL   time.Duration
	AnalysisTTL time.Duration
	Now         func() time.Time
}

// Service keeps resume text in a read-through cache in front of the
// repository and memoises analyses by content. Cache failures are logged and
// never fail a request.
type Service struct {
	logger      *slog.Logger
	cache       jobcache.Store
	resumes     ResumeRepository
	analyzer    Analyzer
	jobs        JobFinder
	resumeTTL   time.Duration
	analysisTTL time.Duration
	now         func() time.Time
}

// NewService creates a new analysis service instance
func NewService(cfg *Config) *Service {
	s := &Service{
		logger:      cfg.Logger,
		cache:       cfg.Cache,
		resumes:     cfg.Resumes,
		analyzer:    cfg.Analyzer,
		jobs:        cfg.Jobs,
		resumeTTL:   cfg.ResumeTTL,
		analysisTTL: cfg.AnalysisTTL,
		now:         cfg.Now,
	}
	if s.resumeTTL <= 0 {
		s.resumeTTL = DefaultResumeTTL
	}
	if s.analysisTTL <= 0 {
		s.analysisTTL = DefaultAnalysisTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SaveResume stores already extracted resume text and warms the cache
func (s *Service) SaveResume(ctx context.Context, userID, filename, text string) (domain.Resume, error) {
	text = normalizeText(text)
	if text == "" {
		return domain.Resume{}, ErrEmptyResume
	}

	resume := domain.Resume{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filename:  filename,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}

	if err := s.resumes.CreateResume(ctx, &resume); err != nil {
		return domain.Resume{}, fmt.Errorf("failed to save resume: %w", err)
	}

	s.cacheSet(ctx, resumeKey(resume.ID), text, s.resumeTTL)

	s.logger.Info("Resume saved",
		slog.String("resume_id", resume.ID),
		slog.String("user_id", userID),
		slog.Int("length", len(text)),
	)

	return resume, nil
}

// ResumeText returns the resume text from cache, falling back to the
// repository and repopulating the cache on a miss
func (s *Service) ResumeText(ctx context.Context, id string) (string, error) {
	key := resumeKey(id)

	text, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read resume cache",
			slog.String("resume_id", id),
			slog.String("error", err.Error()),
		)
	}
	if found {
		return text, nil
	}

	resume, err := s.resumes.GetResume(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load resume %s: %w", id, err)
	}

	s.cacheSet(ctx, key, resume.Text, s.resumeTTL)
	return resume.Text, nil
}

// ListResumes returns the resumes a user has saved, newest first
func (s *Service) ListResumes(ctx context.Context, userID string) ([]domain.Resume, error) {
	resumes, err := s.resumes.ListResumes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumes for %s: %w", userID, err)
	}
	if resumes == nil {
		resumes = []domain.Resume{}
	}
	return resumes, nil
}

// DeleteResume removes the resume and its cached text
func (s *Service) DeleteResume(ctx context.Context, id string) error {
	if err := s.resumes.DeleteResume(ctx, id); err != nil {
		return fmt.Errorf("failed to delete resume %s: %w", id, err)
	}

	if err := s.cache.Delete(ctx, resumeKey(id)); err != nil {
		s.logger.Warn("Failed to evict resume from cache",
			slog.String("resume_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Resume deleted", slog.String("resume_id", id))
	return nil
}

// Analyze compares the resume with jobDescription. Results are cached by
// content, so an edited description is analysed afresh.
func (s *Service) Analyze(ctx context.Context, resumeID, jobDescription string) (domain.MatchAnalysis, error) {
	text, err := s.ResumeText(ctx, resumeID)
	if err != nil {
		return domain.MatchAnalysis{}, err
	}

	key := analysisKey(text, jobDescription)
	if cached, ok := s.cachedAnalysis(ctx, key); ok {
		s.logger.Debug("Analysis served from cache", slog.String("resume_id", resumeID))
		return cached, nil
	}

	result, err := s.analyzer.Analyze(ctx, text, jobDescription)
	if err != nil {
		return domain.MatchAnalysis{}, fmt.Errorf("failed to analyse resume %s: %w", resumeID, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return domain.MatchAnalysis{}, fmt.Errorf("failed to marshal analysis: %w", err)
	}
	s.cacheSet(ctx, key, string(data), s.analysisTTL)

	return result, nil
}

// MatchJob analyses the resume against a job of the current bucket and
// returns the job with its match fields set
func (s *Service) MatchJob(ctx context.Context, resumeID, jobID string) (domain.Job, error) {
	job, ok := s.jobs.Get(ctx, jobID)
	if !ok {
		return domain.Job{}, fmt.Errorf("job %s: %w", jobID, domain.ErrJobNotFound)
	}

	result, err := s.Analyze(ctx, resumeID, jobText(job))
	if err != nil {
		return domain.Job{}, err
	}

	return job.WithMatchAnalysis(result), nil
}

func (s *Service) cachedAnalysis(ctx context.Context, key string) (domain.MatchAnalysis, bool) {
	value, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read analysis cache", slog.String("error", err.Error()))
		return domain.MatchAnalysis{}, false
	}
	if !found {
		return domain.MatchAnalysis{}, false
	}

	var result domain.MatchAnalysis
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		s.logger.Warn("Discarding undecodable cached analysis",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return domain.MatchAnalysis{}, false
	}
	return result, true
}

func (s *Service) cacheSet(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("Failed to write cache",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func resumeKey(id string) string {
	return resumeKeyPrefix + id
}

func analysisKey(resumeText, jobDescription string) string {
	h := sha256.New()
	h.Write([]byte(resumeText))
	h.Write([]byte{0})
	h.Write([]byte(jobDescription))
	return analysisKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// jobText is what a job is matched on: its description followed by its skills
func jobText(job domain.Job) string {
	if len(job.Skills) == 0 {
		return job.Description
	}
	return job.Description + "\n" + strings.Join(job.Skills, ", ")
}

// normalizeText collapses whitespace runs into single spaces
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
