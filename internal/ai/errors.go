package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimitExhausted matches any RateLimitExhaustedError.
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

	// ErrNoInput is returned when neither images nor text were supplied.
	ErrNoInput = errors.New("no images or text to extract from")
)

// RateLimitExhaustedError is returned by Caller after MaxRetries consecutive
// rate-limited attempts.
type RateLimitExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RateLimitExhaustedError) Error() string {
	return fmt.Sprintf("rate limit persisted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RateLimitExhaustedError) Is(target error) bool { return target == ErrRateLimitExhausted }

func (e *RateLimitExhaustedError) Unwrap() error { return e.Last }

// ExtractionError is a fatal extraction failure with enough context to retry by hand.
type ExtractionError struct {
	Stage  Stage
	Images int
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed in stage %s (%d images): %v", e.Stage, e.Images, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
