package ai

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	genai "google.golang.org/genai"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       FailureKind
		retryAfter time.Duration
	}{
		{name: "nil error", err: nil, want: FailureOther},
		{name: "http code in text", err: errors.New("googleapi: Error 429: Too Many Requests"), want: FailureRateLimited},
		{name: "quota upper case", err: errors.New("QUOTA exceeded for project"), want: FailureRateLimited},
		{name: "rate limit phrase", err: errors.New("Rate Limit reached"), want: FailureRateLimited},
		{name: "wrapped", err: fmt.Errorf("gemini call: %w", errors.New("resource exhausted: check quota")), want: FailureRateLimited},
		{
			name:       "suggested delay",
			err:        errors.New(`Error 429, Message: quota exceeded, Details: [{"retryDelay": "37s"}]`),
			want:       FailureRateLimited,
			retryAfter: 37 * time.Second,
		},
		{name: "unrelated", err: errors.New("invalid image payload"), want: FailureOther},
		{name: "bare rate", err: errors.New("User rate exceeded"), want: FailureRateLimited},
		{name: "bare limit", err: errors.New("daily limit reached"), want: FailureRateLimited},
		{name: "rate upper case", err: errors.New("RATE exceeded for model"), want: FailureRateLimited},
		{name: "limit before punctuation", err: errors.New("request failed (limit)"), want: FailureRateLimited},
		{name: "words containing markers", err: errors.New("failed to generate content: unlimited retries disabled"), want: FailureOther},
		{name: "status text", err: errors.New("RESOURCE_EXHAUSTED"), want: FailureRateLimited},
		{name: "api error code", err: genai.APIError{Code: 429, Message: "too many requests"}, want: FailureRateLimited},
		{name: "api error other code", err: genai.APIError{Code: 400, Message: "bad request"}, want: FailureOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ClassifyFailure(tt.err)
			assert.Equal(t, tt.want, f.Kind)
			assert.Equal(t, tt.retryAfter, f.RetryAfter)
		})
	}
}

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		msg  string
		want time.Duration
	}{
		{`retryDelay: "12s"`, 12 * time.Second},
		{"retry_delay {\n  seconds: 41\n}", 41 * time.Second},
		{"Please retry in 2.5s.", 2500 * time.Millisecond},
		{"retry after 800ms", 800 * time.Millisecond},
		{"no hint here", 0},
		{"retry in 0s", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRetryDelay(tt.msg), tt.msg)
	}
}

func TestMarkerClassifier(t *testing.T) {
	classify := MarkerClassifier([]string{"slow down"})
	assert.True(t, classify(errors.New("Slow Down please")).RateLimited())
	assert.False(t, classify(errors.New("quota exceeded")).RateLimited())
	assert.False(t, classify(errors.New("slow downloads")).RateLimited())
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("rate", "rate"))
	assert.True(t, containsWord("generate at rate 5", "rate"))
	assert.True(t, containsWord("über-limit", "limit"))
	assert.False(t, containsWord("generated", "rate"))
	assert.False(t, containsWord("limitless", "limit"))
	assert.False(t, containsWord("älimit", "limit"))
	assert.False(t, containsWord("anything", ""))
}
