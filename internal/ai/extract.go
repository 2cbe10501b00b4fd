package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Input is one extraction request: scanned pages/photos plus free text.
type Input struct {
	Images []Image
	Text   string
}

// Result is the final Markdown and how it was produced.
type Result struct {
	Markdown string
	Stage    Stage
	Calls    int
	Images   int
}

// Extractor runs the staged fallback BULK -> BATCHED -> SEQUENTIAL. Every stage keeps the
// input order of images, so the combine call always sees the same ordering.
type Extractor struct {
	caller  *Caller
	prompts Prompts
	notify  ProgressFunc
}

type ExtractorOption func(*Extractor)

func WithPrompts(p Prompts) ExtractorOption {
	return func(e *Extractor) { e.prompts = p.withDefaults() }
}

func WithExtractorProgress(fn ProgressFunc) ExtractorOption {
	return func(e *Extractor) { e.notify = fn }
}

func NewExtractor(caller *Caller, opts ...ExtractorOption) *Extractor {
	e := &Extractor{caller: caller, prompts: Prompts{}.withDefaults()}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, in Input) (*Result, error) {
	n := len(in.Images)
	res := &Result{Images: n}

	if n == 0 && strings.TrimSpace(in.Text) == "" {
		return nil, ErrNoInput
	}
	if n <= 1 {
		res.Stage = StageSingle
		e.emit(Event{Kind: EventStageEntered, Stage: StageSingle, Total: 1, Images: n})
		out, err := e.call(ctx, StageSingle, e.fullParts(in), res)
		if err != nil {
			return nil, &ExtractionError{Stage: StageSingle, Images: n, Err: err}
		}
		res.Markdown = stripCodeFences(out)
		return res, nil
	}

	policy := e.caller.policy

	// BULK is a single direct attempt; throttling here means the batch is too large.
	e.emit(Event{Kind: EventStageEntered, Stage: StageBulk, Total: 1, Images: n})
	if err := ctx.Err(); err != nil {
		return nil, &ExtractionError{Stage: StageBulk, Images: n, Err: err}
	}
	res.Calls++
	out, err := e.caller.gen.Generate(ctx, e.fullParts(in))
	if err == nil {
		res.Stage = StageBulk
		res.Markdown = stripCodeFences(out)
		return res, nil
	}
	f := e.caller.classify(err)
	if !f.RateLimited() {
		return nil, &ExtractionError{Stage: StageBulk, Images: n, Err: err}
	}
	e.emit(Event{Kind: EventStageFailed, Stage: StageBulk, Images: n, Err: err})
	if err := e.wait(ctx, StageBulk, policy.stageDelay(f)); err != nil {
		return nil, &ExtractionError{Stage: StageBulk, Images: n, Err: err}
	}

	if n > policy.GroupSize {
		md, err := e.grouped(ctx, StageBatched, policy.GroupSize, in, res)
		if err == nil {
			res.Stage = StageBatched
			res.Markdown = md
			return res, nil
		}
		var xerr *ExtractionError
		if errors.As(err, &xerr) {
			return nil, err
		}
		e.emit(Event{Kind: EventStageFailed, Stage: StageBatched, Images: n, Err: err})
		if err := e.wait(ctx, StageBatched, policy.stageDelay(e.caller.classify(err))); err != nil {
			return nil, &ExtractionError{Stage: StageBatched, Images: n, Err: err}
		}
	}

	md, err := e.grouped(ctx, StageSequential, 1, in, res)
	if err != nil {
		var xerr *ExtractionError
		if errors.As(err, &xerr) {
			return nil, err
		}
		return nil, &ExtractionError{Stage: StageSequential, Images: n, Err: err}
	}
	res.Stage = StageSequential
	res.Markdown = md
	return res, nil
}

// grouped extracts raw notes per group and combines them. A bare *RateLimitExhaustedError
// means the stage can be downgraded; every other failure comes back as *ExtractionError.
func (e *Extractor) grouped(ctx context.Context, stage Stage, size int, in Input, res *Result) (string, error) {
	n := len(in.Images)
	groups := partition(in.Images, size)
	e.emit(Event{Kind: EventStageEntered, Stage: stage, Total: len(groups), Images: n})

	delay := capDuration(e.caller.policy.GroupDelay, e.caller.policy.StageDelayCap)
	notes := make([]string, 0, len(groups))
	start := 0
	for i, g := range groups {
		if i > 0 {
			if err := e.wait(ctx, stage, delay); err != nil {
				return "", &ExtractionError{Stage: stage, Images: n, Err: err}
			}
		}
		e.emit(Event{Kind: EventItem, Stage: stage, Item: i + 1, Total: len(groups), Images: len(g)})
		out, err := e.call(ctx, stage, e.groupParts(g, start, n), res)
		if err != nil {
			if errors.Is(err, ErrRateLimitExhausted) {
				return "", err
			}
			return "", &ExtractionError{Stage: stage, Images: n, Err: err}
		}
		notes = append(notes, fmt.Sprintf("### Teil %d (Bilder %s)\n%s", i+1, span(start, len(g)), strings.TrimSpace(out)))
		start += len(g)
	}

	e.emit(Event{Kind: EventCombine, Stage: stage, Total: len(groups), Images: n})
	out, err := e.call(ctx, stage, e.combineParts(notes, in.Text), res)
	if err != nil {
		err = fmt.Errorf("combine: %w", err)
		if errors.Is(err, ErrRateLimitExhausted) {
			return "", err
		}
		return "", &ExtractionError{Stage: stage, Images: n, Err: err}
	}
	return stripCodeFences(out), nil
}

func (e *Extractor) call(ctx context.Context, stage Stage, parts []Part, res *Result) (string, error) {
	return e.caller.call(ctx, parts, func(ev Event) {
		if ev.Kind == EventWaiting {
			ev.Stage = stage
		}
		e.emit(ev)
	}, &res.Calls)
}

func (e *Extractor) wait(ctx context.Context, stage Stage, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	e.emit(Event{Kind: EventWaiting, Stage: stage, Wait: d})
	return e.caller.sleep(ctx, d)
}

func (e *Extractor) emit(ev Event) {
	if e.notify != nil {
		e.notify(ev)
	}
}

func (e *Extractor) fullParts(in Input) []Part {
	parts := []Part{TextPart(e.prompts.Extraction + "\n\nHier sind die Unterlagen:\n")}
	if t := strings.TrimSpace(in.Text); t != "" {
		parts = append(parts, TextPart("TEXTUELLE INFORMATIONEN:\n"+t+"\n\n"))
	}
	if len(in.Images) > 0 {
		parts = append(parts, TextPart("GESCANNTE DOKUMENTE/BILDER:"))
		for _, img := range in.Images {
			parts = append(parts, ImagePart(img))
		}
	}
	return parts
}

func (e *Extractor) groupParts(group []Image, start, total int) []Part {
	parts := []Part{
		TextPart(e.prompts.Group),
		TextPart(fmt.Sprintf("Bilder %s von %d:", span(start, len(group)), total)),
	}
	for _, img := range group {
		parts = append(parts, ImagePart(img))
	}
	return parts
}

func (e *Extractor) combineParts(notes []string, text string) []Part {
	parts := []Part{TextPart(e.prompts.Combine), TextPart(strings.Join(notes, "\n\n"))}
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, TextPart("TEXTUELLE INFORMATIONEN:\n"+t))
	}
	return parts
}

func partition(images []Image, size int) [][]Image {
	if size <= 0 {
		size = 1
	}
	var out [][]Image
	for i := 0; i < len(images); i += size {
		end := i + size
		if end > len(images) {
			end = len(images)
		}
		out = append(out, images[i:end])
	}
	return out
}

// span formats a 1-based image range like "4-6" or "2".
func span(start, n int) string {
	if n <= 1 {
		return fmt.Sprintf("%d", start+1)
	}
	return fmt.Sprintf("%d-%d", start+1, start+n)
}
