package domain

import "errors"

var (
	// ErrMalformedMessage is returned when a queue message body cannot be decoded
	ErrMalformedMessage = errors.New("malformed queue message")

	// ErrStaleMessage is returned when a queue message is older than the staleness window
	// or carries no parseable timestamp
	ErrStaleMessage = errors.New("stale queue message")

	// ErrJobNotFound is returned when a job is not present in the current bucket
	ErrJobNotFound = errors.New("job not found")

	// ErrResumeNotFound is returned when a resume cannot be found in cache or database
	ErrResumeNotFound = errors.New("resume not found")
)
