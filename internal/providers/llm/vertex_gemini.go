package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

const VertexGeminiID = "vertex-gemini"

type VertexGemini struct {
	client *vertexgenai.Client
}

func NewVertexGemini(ctx context.Context, projectID, location string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}
	return &VertexGemini{client: c}, nil
}

func (v *VertexGemini) ID() string   { return VertexGeminiID }
func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Generate(ctx context.Context, model, instruction, input string, p Params) (string, error) {
	if model == "" {
		model = "gemini-1.5-flash"
	}

	m := v.client.GenerativeModel(model)
	m.SystemInstruction = &vertexgenai.Content{
		Parts: []vertexgenai.Part{vertexgenai.Text(instruction)},
	}
	if p.Temperature > 0 {
		m.SetTemperature(p.Temperature)
	}
	if p.MaxOutputTokens > 0 {
		m.SetMaxOutputTokens(p.MaxOutputTokens)
	}

	resp, err := m.GenerateContent(ctx, vertexgenai.Text(input))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String(), nil
}
