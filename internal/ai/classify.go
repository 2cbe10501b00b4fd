package ai

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	genai "google.golang.org/genai"
)

// FailureKind separates throttling from every other failure.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureRateLimited
)

func (k FailureKind) String() string {
	if k == FailureRateLimited {
		return "rate_limited"
	}
	return "other"
}

// Failure is the classification of a generation error. RetryAfter is zero when the
// provider did not suggest a delay.
type Failure struct {
	Kind       FailureKind
	RetryAfter time.Duration
}

func (f Failure) RateLimited() bool { return f.Kind == FailureRateLimited }

// DefaultRateLimitMarkers are matched case-insensitively against the error text as whole
// words, so "rate" matches "User rate exceeded" but not "generate".
var DefaultRateLimitMarkers = []string{
	"429", "quota", "rate", "limit", "rate limit", "rate_limit", "ratelimit",
	"resource exhausted", "resource_exhausted", "too many requests",
}

// ClassifyFunc decides whether an error is a rate limit.
type ClassifyFunc func(err error) Failure

var (
	retryDelayRe = regexp.MustCompile(`(?i)retry[_ ]?delay[^0-9]{0,20}(\d+(?:\.\d+)?)\s*(ms|s)?`)
	retryInRe    = regexp.MustCompile(`(?i)retry (?:in|after) (\d+(?:\.\d+)?)\s*(ms|s|seconds?)?`)
)

// ClassifyFailure is the default ClassifyFunc. The provider only reports throttling as free
// text on some paths, so the text heuristic stays the fallback.
func ClassifyFailure(err error) Failure {
	return classifyWith(err, DefaultRateLimitMarkers)
}

// MarkerClassifier returns a ClassifyFunc using a custom marker list.
func MarkerClassifier(markers []string) ClassifyFunc {
	return func(err error) Failure { return classifyWith(err, markers) }
}

func classifyWith(err error, markers []string) Failure {
	if err == nil {
		return Failure{Kind: FailureOther}
	}
	msg := err.Error()
	f := Failure{Kind: FailureOther, RetryAfter: ParseRetryDelay(msg)}

	if code, ok := apiErrorCode(err); ok && code == http.StatusTooManyRequests {
		f.Kind = FailureRateLimited
		return f
	}
	lower := strings.ToLower(msg)
	for _, m := range markers {
		if containsWord(lower, strings.ToLower(m)) {
			f.Kind = FailureRateLimited
			return f
		}
	}
	return f
}

// containsWord reports whether word occurs in s with no letter or digit directly before
// or after it.
func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], word)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(word)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		off = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// ParseRetryDelay extracts a provider-suggested delay such as `retryDelay: "37s"` or
// "Please retry in 12.5s". It returns zero when nothing parseable is found.
func ParseRetryDelay(msg string) time.Duration {
	for _, re := range []*regexp.Regexp{retryDelayRe, retryInRe} {
		m := re.FindStringSubmatch(msg)
		if len(m) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v <= 0 {
			continue
		}
		if len(m) > 2 && m[2] == "ms" {
			return time.Duration(v * float64(time.Millisecond))
		}
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
