package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

const GoogleSpeechID = "google-speech"

type GoogleSpeech struct {
	c *speech.Client

	// AlternativeLanguages widens recognition when no hint is given.
	AlternativeLanguages []string
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:                    c,
		AlternativeLanguages: []string{"en-US", "fa-IR"},
	}, nil
}

func (g *GoogleSpeech) ID() string   { return GoogleSpeechID }
func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Transcribe(ctx context.Context, data []byte, mimeType, languageHint string) (Result, error) {
	language := languageHint
	if language == "" {
		language = "en-US"
	}

	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	if languageHint == "" {
		cfg.AlternativeLanguageCodes = g.AlternativeLanguages
	}

	switch mimeType {
	case "audio/ogg", "audio/opus":
		cfg.Encoding = speechpb.RecognitionConfig_OGG_OPUS
		cfg.SampleRateHertz = 48000
	case "audio/flac", "audio/x-flac":
		cfg.Encoding = speechpb.RecognitionConfig_FLAC
	default:
		// WAV and FLAC are self-describing; anything else the API either
		// sniffs or rejects, and rejection just moves the cascade on.
		cfg.Encoding = speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return Result{}, err
	}

	// Results arrive as sequential segments; take the best alternative of
	// each and join them in order.
	var out Result
	var parts []string
	for _, r := range resp.Results {
		if out.DetectedLanguage == "" && r.LanguageCode != "" {
			out.DetectedLanguage = r.LanguageCode
		}
		best := ""
		var bestConf float32 = -1
		for _, alt := range r.Alternatives {
			if alt.Transcript != "" && alt.Confidence > bestConf {
				best = alt.Transcript
				bestConf = alt.Confidence
			}
		}
		if best != "" {
			parts = append(parts, best)
		}
	}
	out.Text = strings.Join(parts, " ")
	return out, nil
}
