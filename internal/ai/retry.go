package ai

import (
	"context"
	"time"
)

// Policy holds the retry and pacing parameters shared by Caller and Extractor.
// Zero counts and delays fall back to the defaults below; SafetyMargin and GroupDelay
// may legitimately be zero.
type Policy struct {
	MaxRetries    int
	DefaultDelay  time.Duration
	SafetyMargin  time.Duration
	StageDelayCap time.Duration
	GroupDelay    time.Duration
	GroupSize     int
}

const (
	DefaultMaxRetries    = 3
	DefaultDelay         = 60 * time.Second
	DefaultSafetyMargin  = 5 * time.Second
	DefaultStageDelayCap = 30 * time.Second
	DefaultGroupDelay    = 5 * time.Second
	DefaultGroupSize     = 3
)

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    DefaultMaxRetries,
		DefaultDelay:  DefaultDelay,
		SafetyMargin:  DefaultSafetyMargin,
		StageDelayCap: DefaultStageDelayCap,
		GroupDelay:    DefaultGroupDelay,
		GroupSize:     DefaultGroupSize,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.DefaultDelay <= 0 {
		p.DefaultDelay = d.DefaultDelay
	}
	if p.SafetyMargin < 0 {
		p.SafetyMargin = 0
	}
	if p.StageDelayCap <= 0 {
		p.StageDelayCap = d.StageDelayCap
	}
	if p.GroupDelay < 0 {
		p.GroupDelay = 0
	}
	if p.GroupSize <= 0 {
		p.GroupSize = d.GroupSize
	}
	return p
}

// backoff is the wait before retrying a rate-limited call.
func (p Policy) backoff(f Failure) time.Duration {
	wait := f.RetryAfter
	if wait <= 0 {
		wait = p.DefaultDelay
	}
	return wait + p.SafetyMargin
}

// stageDelay is the short wait before a stage downgrade.
func (p Policy) stageDelay(f Failure) time.Duration {
	return capDuration(p.backoff(f), p.StageDelayCap)
}

func capDuration(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Caller wraps a Generator with bounded retry on rate limits. Any other failure is
// returned unchanged on the first attempt.
type Caller struct {
	gen      Generator
	policy   Policy
	classify ClassifyFunc
	sleep    SleepFunc
	notify   ProgressFunc
}

type CallerOption func(*Caller)

func WithClassifier(fn ClassifyFunc) CallerOption {
	return func(c *Caller) {
		if fn != nil {
			c.classify = fn
		}
	}
}

func WithSleep(fn SleepFunc) CallerOption {
	return func(c *Caller) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func WithProgress(fn ProgressFunc) CallerOption {
	return func(c *Caller) { c.notify = fn }
}

func NewCaller(gen Generator, policy Policy, opts ...CallerOption) *Caller {
	c := &Caller{
		gen:      gen,
		policy:   policy.withDefaults(),
		classify: ClassifyFailure,
		sleep:    Sleep,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Caller) Policy() Policy { return c.policy }

// Classify exposes the caller's classifier so stages use the same heuristic.
func (c *Caller) Classify(err error) Failure { return c.classify(err) }

// Call sends parts, retrying up to MaxRetries attempts while the provider throttles.
func (c *Caller) Call(ctx context.Context, parts []Part) (string, error) {
	return c.call(ctx, parts, c.emit, nil)
}

func (c *Caller) call(ctx context.Context, parts []Part, emit ProgressFunc, calls *int) (string, error) {
	var last error
	for attempt := 1; attempt <= c.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if calls != nil {
			*calls++
		}
		out, err := c.gen.Generate(ctx, parts)
		if err == nil {
			return out, nil
		}
		f := c.classify(err)
		if !f.RateLimited() {
			return "", err
		}
		last = err
		if attempt == c.policy.MaxRetries {
			break
		}
		wait := c.policy.backoff(f)
		if emit != nil {
			emit(Event{Kind: EventWaiting, Wait: wait, Attempt: attempt, Images: countImages(parts), Err: err})
		}
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", &RateLimitExhaustedError{Attempts: c.policy.MaxRetries, Last: last}
}

func (c *Caller) emit(ev Event) {
	if c.notify != nil {
		c.notify(ev)
	}
}
