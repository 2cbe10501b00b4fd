package ai

import (
	"context"
	"strings"
)

// Image is an encoded image ready to be sent inline to the generation service.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Part is one element of a generation request: either text or an inline image.
type Part struct {
	Text  string
	Image *Image
}

func TextPart(s string) Part { return Part{Text: s} }

func ImagePart(img Image) Part { return Part{Image: &img} }

// Generator sends an ordered list of parts to a generation service and returns its text.
type Generator interface {
	Generate(ctx context.Context, parts []Part) (string, error)
}

// Noop echoes the text parts back. It is used when no provider is configured so the
// supplied text can still be edited by hand.
type Noop struct{}

func (Noop) Generate(ctx context.Context, parts []Part) (string, error) {
	var texts []string
	for _, p := range parts {
		if p.Image == nil && strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

func countImages(parts []Part) int {
	n := 0
	for _, p := range parts {
		if p.Image != nil {
			n++
		}
	}
	return n
}
