package stt

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

const GeminiAudioID = "vertex-gemini"

const transcribePrompt = `Transcribe this audio verbatim in its original language.
On the very first line output only "lang: " followed by the ISO 639-1 code of the spoken language.
Every following line is the transcript, with proper punctuation and line breaks. No commentary.`

// GeminiAudio transcribes by sending the audio inline to a Vertex Gemini
// model. It accepts containers Google Speech rejects (plain mp3/m4a), which
// is why it sits behind it in the default cascade.
type GeminiAudio struct {
	client *vertexgenai.Client
	model  string
}

func NewGeminiAudio(ctx context.Context, projectID, location, model string) (*GeminiAudio, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiAudio{client: c, model: model}, nil
}

func (g *GeminiAudio) ID() string   { return GeminiAudioID }
func (g *GeminiAudio) Close() error { return g.client.Close() }

func (g *GeminiAudio) Transcribe(ctx context.Context, data []byte, mimeType, languageHint string) (Result, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0)

	prompt := transcribePrompt
	if languageHint != "" {
		prompt += "\nThe audio is expected to be in language: " + languageHint + "."
	}

	resp, err := m.GenerateContent(ctx,
		vertexgenai.Blob{MIMEType: mimeType, Data: data},
		vertexgenai.Text(prompt),
	)
	if err != nil {
		return Result{}, err
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
	return parseTranscript(b.String()), nil
}

// parseTranscript splits the "lang: xx" preamble from the transcript body.
// Output that ignores the instruction is kept whole.
func parseTranscript(raw string) Result {
	text := strings.TrimSpace(raw)
	first, rest, found := strings.Cut(text, "\n")
	if lang, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(first)), "lang:"); ok && found {
		return Result{
			Text:             strings.TrimSpace(rest),
			DetectedLanguage: strings.TrimSpace(lang),
		}
	}
	return Result{Text: text}
}
