package handler

import (
	"encoding/base64"
	"fmt"
	"slices"

	"github.com/cuongbtq/jobfeed/internal/domain"
)

// Cursors carry the id of the last job of a page. Buckets are ordered by id,
// so the next page starts at the first greater id.

func DecodeJobCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(decoded) == 0 {
		return "", fmt.Errorf("invalid cursor format")
	}
	return string(decoded), nil
}

func EncodeJobCursor(lastID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastID))
}

// paginate returns up to size jobs with an id greater than after, and the
// cursor of the following page if there is one
func paginate(jobs []domain.Job, after string, size int) ([]domain.Job, string) {
	start := 0
	if after != "" {
		start = slices.IndexFunc(jobs, func(j domain.Job) bool { return j.ID > after })
		if start < 0 {
			return []domain.Job{}, ""
		}
	}

	end := min(start+size, len(jobs))
	page := jobs[start:end]
	if end == len(jobs) {
		return page, ""
	}
	return page, EncodeJobCursor(page[len(page)-1].ID)
}
