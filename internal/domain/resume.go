package domain

import "time"

// Resume is a user's uploaded resume, already reduced to plain text
type Resume struct {
	ID        string    `json:"id" db:"resume_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Filename  string    `json:"filename" db:"filename"`
	Text      string    `json:"-" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MatchAnalysis is the result of comparing resume text with a job description
type MatchAnalysis struct {
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingKeywords []string `json:"missing_keywords"`
}
