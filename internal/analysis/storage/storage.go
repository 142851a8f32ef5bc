package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/jobfeed/internal/domain"
	"github.com/cuongbtq/jobfeed/shared/postgresql"
)

const schema = `
	CREATE TABLE IF NOT EXISTS resumes (
		resume_id  TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		filename   TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS resumes_user_id_idx ON resumes (user_id, created_at DESC);
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// EnsureSchema creates the resumes table when missing
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create resumes schema: %w", err)
	}
	return nil
}

func (s *Storage) CreateResume(ctx context.Context, resume *domain.Resume) error {
	query := `
		INSERT INTO resumes (
			resume_id, user_id, filename, body, created_at
		) VALUES (
			:resume_id, :user_id, :filename, :body, :created_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, resume); err != nil {
		return fmt.Errorf("failed to create resume: %w", err)
	}

	return nil
}

func (s *Storage) GetResume(ctx context.Context, id string) (*domain.Resume, error) {
	var resume domain.Resume
	query := `
		SELECT
			resume_id, user_id, filename, body, created_at
		FROM resumes
		WHERE resume_id = $1
	`

	err := s.db.GetContext(ctx, &resume, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrResumeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resume: %w", err)
	}

	return &resume, nil
}

// ListResumes returns a user's resumes, newest first
func (s *Storage) ListResumes(ctx context.Context, userID string) ([]domain.Resume, error) {
	query := `
		SELECT
			resume_id, user_id, filename, body, created_at
		FROM resumes
		WHERE user_id = $1
		ORDER BY created_at DESC, resume_id DESC
	`

	resumes := []domain.Resume{}
	if err := s.db.SelectContext(ctx, &resumes, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list resumes: %w", err)
	}

	return resumes, nil
}

func (s *Storage) DeleteResume(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resumes WHERE resume_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resume: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete resume: %w", err)
	}
	if n == 0 {
		return domain.ErrResumeNotFound
	}

	return nil
}
