package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	errThrottled = errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota).")
	errBadInput  = errors.New("invalid image payload")
)

// fakeGenerator records every request and answers through respond.
type fakeGenerator struct {
	requests [][]Part
	respond  func(call int, parts []Part) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, parts []Part) (string, error) {
	f.requests = append(f.requests, parts)
	return f.respond(len(f.requests), parts)
}

func (f *fakeGenerator) imageCounts() []int {
	out := make([]int, len(f.requests))
	for i, r := range f.requests {
		out[i] = countImages(r)
	}
	return out
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func testImages(n int) []Image {
	out := make([]Image, n)
	for i := range out {
		out[i] = Image{Name: fmt.Sprintf("scan_%d.jpg", i+1), MIMEType: "image/jpeg", Data: []byte{byte(i)}}
	}
	return out
}

func isCombine(parts []Part) bool {
	return len(parts) > 0 && strings.HasPrefix(parts[0].Text, DefaultCombinePrompt)
}

func imageNames(parts []Part) []string {
	var names []string
	for _, p := range parts {
		if p.Image != nil {
			names = append(names, p.Image.Name)
		}
	}
	return names
}
