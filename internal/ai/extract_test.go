package ai

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageLog struct {
	entered []Stage
	events  []Event
}

func (l *stageLog) record(ev Event) {
	l.events = append(l.events, ev)
	if ev.Kind == EventStageEntered {
		l.entered = append(l.entered, ev.Stage)
	}
}

func newTestExtractor(gen Generator, rec *sleepRecorder, log *stageLog) *Extractor {
	caller := NewCaller(gen, DefaultPolicy(), WithSleep(rec.sleep))
	return NewExtractor(caller, WithExtractorProgress(log.record))
}

func TestExtractNoInput(t *testing.T) {
	gen := &fakeGenerator{respond: func(int, []Part) (string, error) { return "x", nil }}
	e := newTestExtractor(gen, &sleepRecorder{}, &stageLog{})

	_, err := e.Extract(context.Background(), Input{Text: "  "})
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Empty(t, gen.requests)
}

func TestExtractTextOnly(t *testing.T) {
	gen := &fakeGenerator{respond: func(int, []Part) (string, error) {
		return "```markdown\n# Familie Meier | Köln\n```", nil
	}}
	log := &stageLog{}
	e := newTestExtractor(gen, &sleepRecorder{}, log)

	res, err := e.Extract(context.Background(), Input{Text: "Mail von Frau Meier"})
	require.NoError(t, err)
	assert.Equal(t, StageSingle, res.Stage)
	assert.Equal(t, "# Familie Meier | Köln", res.Markdown)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, []int{0}, gen.imageCounts())
	assert.Contains(t, gen.requests[0][1].Text, "Mail von Frau Meier")
}

func TestExtractSingleImageUsesRetry(t *testing.T) {
	gen := &fakeGenerator{respond: func(call int, parts []Part) (string, error) {
		if call == 1 {
			return "", errThrottled
		}
		return "# Familie Schulz | Bonn", nil
	}}
	rec := &sleepRecorder{}
	log := &stageLog{}
	e := newTestExtractor(gen, rec, log)

	res, err := e.Extract(context.Background(), Input{Images: testImages(1)})
	require.NoError(t, err)
	assert.Equal(t, StageSingle, res.Stage)
	assert.Equal(t, 2, res.Calls)
	assert.Equal(t, []Stage{StageSingle}, log.entered)
	assert.Len(t, rec.waits, 1)
}

func TestExtractSingleImageExhausted(t *testing.T) {
	gen := &fakeGenerator{respond: func(int, []Part) (string, error) { return "", errThrottled }}
	log := &stageLog{}
	e := newTestExtractor(gen, &sleepRecorder{}, log)

	_, err := e.Extract(context.Background(), Input{Images: testImages(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExhausted)

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, StageSingle, xerr.Stage)
	assert.Equal(t, 1, xerr.Images)
	assert.Equal(t, []Stage{StageSingle}, log.entered, "a single item never downgrades")
}

func TestExtractBulkSuccess(t *testing.T) {
	gen := &fakeGenerator{respond: func(int, []Part) (string, error) { return "# Bulk | Ort", nil }}
	log := &stageLog{}
	e := newTestExtractor(gen, &sleepRecorder{}, log)

	res, err := e.Extract(context.Background(), Input{Images: testImages(5), Text: "Notizen"})
	require.NoError(t, err)
	assert.Equal(t, StageBulk, res.Stage)
	assert.Equal(t, "# Bulk | Ort", res.Markdown)
	assert.Equal(t, []int{5}, gen.imageCounts(), "no combine call after a successful bulk")
}

func TestExtractDowngradeOrderSixImages(t *testing.T) {
	// Anything with more than one image is throttled, so BATCHED exhausts and SEQUENTIAL wins.
	gen := &fakeGenerator{respond: func(call int, parts []Part) (string, error) {
		if countImages(parts) > 1 {
			return "", errThrottled
		}
		if isCombine(parts) {
			return "# Familie Sechs | Ort", nil
		}
		return "notiz " + strings.Join(imageNames(parts), ","), nil
	}}
	log := &stageLog{}
	e := newTestExtractor(gen, &sleepRecorder{}, log)

	res, err := e.Extract(context.Background(), Input{Images: testImages(6)})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageBulk, StageBatched, StageSequential}, log.entered)
	assert.Equal(t, StageSequential, res.Stage)
	assert.Equal(t, "# Familie Sechs | Ort", res.Markdown)

	// 1 bulk + 3 attempts on the first group + 6 single calls + 1 combine.
	assert.Equal(t, []int{6, 3, 3, 3, 1, 1, 1, 1, 1, 1, 0}, gen.imageCounts())
	assert.Equal(t, 11, res.Calls)
}

func TestExtractBatchedCombineThrottledDowngrades(t *testing.T) {
	combines := 0
	gen := &fakeGenerator{respond: func(call int, parts []Part) (string, error) {
		if countImages(parts) >= 6 {
			return "", errThrottled
		}
		if isCombine(parts) {
			combines++
			if combines <= 3 {
				return "", errThrottled
			}
			return "# Familie Sechs | Ort", nil
		}
		return "notiz", nil
	}}
	log := &stageLog{}
	e := newTestExtractor(gen, &sleepRecorder{}, log)

	res, err := e.Extract(context.Background(), Input{Images: testImages(6)})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageBulk, StageBatched, StageSequential}, log.entered)
	assert.Equal(t, StageSequential, res.Stage)
	assert.Equal(t, "# Familie Sechs | Ort", res.Markdown)

	// 1 bulk + 2 groups + 3 combine attempts + 6 single calls + 1 combine.
	assert.Equal(t, []int{6, 3, 3, 0, 0, 0, 1, 1, 1, 1, 1, 1, 0}, gen.imageCounts())

	var failed []Event
	for _, ev := range log.events {
		if ev.Kind == EventStageFailed {
			failed = append(failed, ev)
		}
	}
	require.Len(t, failed, 2)
	assert.Equal(t, StageBatched, failed[1].Stage)
	assert.ErrorIs(t, failed[1].Err, ErrRateLimitExhausted)
}

func TestExtractThreeImagesSkipsBatched(t *testing.T) {
	gen := &fakeGenerator{respond: func(call int, parts []Part) (string, error) {
		if countImages(parts) >= 3 {
			return "", errThrottled
		}
		if isCombine(parts) {
			return "# Drei | Ort", nil
		}
		return "notiz", nil
	}}
	log := &stageLog{}
	e := newTestExtractor(gen, &sleepRecorder{}, log)

	res, err := e.Extract(context.Background(), Input{Images: testImages(3)})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageBulk, StageSequential}, log.entered)
	assert.NotContains(t, log.entered, StageBatched)
	assert.Equal(t, StageSequential, res.Stage)
	assert.Equal(t, []int{3, 1, 1, 1, 0}, gen.imageCounts())
}

func TestExtractFourImagesBatchedCombine(t *testing.T) {
	gen := &fakeGenerator{respond: func(call int, parts []Part) (string, error) {
		if countImages(parts) >= 4 {
			return "", errThrottled
		}
		if isCombine(parts) {
			return "# Familie Vier | Hamburg\n## Budget\n- 5000 €", nil
		}
		return "notiz " + strings.Join(imageNames(parts), ","), nil
	}}
	rec := &sleepRecorder{}
	log := &stageLog{}
	e := newTestExtractor(gen, rec, log)

	res, err := e.Extract(context.Background(), Input{Images: testImages(4), Text: "Mail: Termin im Mai"})
	require.NoError(t, err)
	assert.Equal(t, StageBatched, res.Stage)
	assert.Equal(t, "# Familie Vier | Hamburg\n## Budget\n- 5000 €", res.Markdown)
	assert.Equal(t, []Stage{StageBulk, StageBatched}, log.entered)
	assert.Equal(t, []int{4, 3, 1, 0}, gen.imageCounts())

	// Groups keep input order and the combine call sees both group notes plus the text.
	assert.Equal(t, []string{"scan_1.jpg", "scan_2.jpg", "scan_3.jpg"}, imageNames(gen.requests[1]))
	assert.Equal(t, []string{"scan_4.jpg"}, imageNames(gen.requests[2]))
	combine := gen.requests[3]
	assert.Contains(t, combine[1].Text, "### Teil 1 (Bilder 1-3)\nnotiz scan_1.jpg,scan_2.jpg,scan_3.jpg")
	assert.Contains(t, combine[1].Text, "### Teil 2 (Bilder 4)\nnotiz scan_4.jpg")
	assert.Contains(t, combine[2].Text, "Termin im Mai")

	// One capped stage delay plus one inter-group delay.
	assert.Equal(t, []time.Duration{DefaultStageDelayCap, DefaultGroupDelay}, rec.waits)
}

func TestExtractNonRateLimitFailFast(t *testing.T) {
	tests := []struct {
		name      string
		images    int
		failOn    func(call int, parts []Part) bool
		wantStage Stage
		wantCalls int
	}{
		{
			name:      "bulk",
			images:    6,
			failOn:    func(call int, _ []Part) bool { return call == 1 },
			wantStage: StageBulk,
			wantCalls: 1,
		},
		{
			name:   "batched group",
			images: 6,
			failOn: func(call int, parts []Part) bool {
				return call == 2
			},
			wantStage: StageBatched,
			wantCalls: 2,
		},
		{
			name:      "sequential item",
			images:    2,
			failOn:    func(call int, _ []Part) bool { return call == 3 },
			wantStage: StageSequential,
			wantCalls: 3,
		},
		{
			name:      "single",
			images:    1,
			failOn:    func(call int, _ []Part) bool { return true },
			wantStage: StageSingle,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{respond: func(call int, parts []Part) (string, error) {
				if tt.failOn(call, parts) {
					return "", errBadInput
				}
				if call == 1 {
					return "", errThrottled
				}
				return "notiz", nil
			}}
			rec := &sleepRecorder{}
			log := &stageLog{}
			e := newTestExtractor(gen, rec, log)

			_, err := e.Extract(context.Background(), Input{Images: testImages(tt.images)})
			require.Error(t, err)
			assert.ErrorIs(t, err, errBadInput)
			assert.NotErrorIs(t, err, ErrRateLimitExhausted)

			var xerr *ExtractionError
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, tt.wantStage, xerr.Stage)
			assert.Equal(t, tt.images, xerr.Images)
			assert.Len(t, gen.requests, tt.wantCalls, "no retries after a non-rate-limit failure")
			assert.Equal(t, tt.wantStage, log.entered[len(log.entered)-1], "no stage transition after the failure")
		})
	}
}

func TestExtractSequentialExhaustedIsFatal(t *testing.T) {
	gen := &fakeGenerator{respond: func(int, []Part) (string, error) { return "", errThrottled }}
	e := newTestExtractor(gen, &sleepRecorder{}, &stageLog{})

	_, err := e.Extract(context.Background(), Input{Images: testImages(2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExhausted)

	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, StageSequential, xerr.Stage)
	assert.Equal(t, 2, xerr.Images)
}

func TestExtractCancelledBeforeBatchCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{respond: func(call int, parts []Part) (string, error) {
		if call == 1 {
			cancel()
			return "", errThrottled
		}
		return "notiz", nil
	}}
	e := newTestExtractor(gen, &sleepRecorder{}, &stageLog{})

	_, err := e.Extract(ctx, Input{Images: testImages(5)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, gen.requests, 1)
}

func TestPartition(t *testing.T) {
	groups := partition(testImages(7), 3)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 3)
	assert.Len(t, groups[2], 1)
	assert.Equal(t, "scan_7.jpg", groups[2][0].Name)
	assert.Equal(t, "4-6", span(3, 3))
	assert.Equal(t, "7", span(6, 1))
}
