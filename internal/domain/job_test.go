package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_IsRecent(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		listedAt time.Time
		want     bool
	}{
		{name: "listed an hour ago", listedAt: now.Add(-time.Hour), want: true},
		{name: "listed exactly 24h ago", listedAt: now.Add(-24 * time.Hour), want: true},
		{name: "listed 25h ago", listedAt: now.Add(-25 * time.Hour), want: false},
		{name: "listed in the future", listedAt: now.Add(time.Hour), want: true},
		{name: "no listing time", listedAt: time.Time{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := Job{ID: "A", ListedAt: tt.listedAt}
			assert.Equal(t, tt.want, job.IsRecent(now))
		})
	}
}

func TestJob_HoursSincePosting(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, int64(0), Job{}.HoursSincePosting(now))
	assert.Equal(t, int64(3), Job{ListedAt: now.Add(-3*time.Hour - 59*time.Minute)}.HoursSincePosting(now))
}

func TestJob_WithMatchAnalysis(t *testing.T) {
	original := Job{ID: "A", Skills: []string{"go"}}

	analysed := original.WithMatchAnalysis(MatchAnalysis{
		Score:           75,
		MatchedKeywords: []string{"go"},
		MissingKeywords: []string{"kafka"},
	})

	require.NotNil(t, analysed.MatchScore)
	assert.Equal(t, 75.0, *analysed.MatchScore)
	assert.Equal(t, []string{"go"}, analysed.MatchedKeywords)
	assert.Equal(t, []string{"kafka"}, analysed.MissingKeywords)

	assert.Nil(t, original.MatchScore)
	assert.Nil(t, original.MatchedKeywords)

	analysed.Skills[0] = "rust"
	assert.Equal(t, "go", original.Skills[0])
}
