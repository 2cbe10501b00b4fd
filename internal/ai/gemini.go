package ai

import (
	"context"
	"errors"
	"strings"

	genai "google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("missing API key (set EXPOSE_API_KEY or --api-key)")
	}
	if model == "" {
		model = DefaultModel
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: c, model: model}, nil
}

func (g *Gemini) Model() string { return g.model }

// Generate builds a single user turn from parts, keeping their order.
func (g *Gemini) Generate(ctx context.Context, parts []Part) (string, error) {
	if g.client == nil {
		return "", errors.New("gemini not configured")
	}
	content := &genai.Content{Role: genai.RoleUser}
	for _, p := range parts {
		if p.Image != nil {
			mt := p.Image.MIMEType
			if mt == "" {
				mt = "image/jpeg"
			}
			content.Parts = append(content.Parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: mt, Data: p.Image.Data},
			})
			continue
		}
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		content.Parts = append(content.Parts, &genai.Part{Text: p.Text})
	}
	res, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// stripCodeFences removes a wrapping ```markdown ... ``` block some models add.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl != -1 {
			s = s[nl+1:]
		} else {
			return ""
		}
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
