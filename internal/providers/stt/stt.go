package stt

import "context"

// Result is one usable transcription. DetectedLanguage is a BCP-47 tag when
// the backend reports one, empty otherwise.
type Result struct {
	Text             string
	DetectedLanguage string
}

// Provider is the abstraction over any speech-to-text backend. Implementations
// must be safe for concurrent use.
type Provider interface {
	ID() string
	// Transcribe converts audio bytes into text. languageHint is a BCP-47 tag
	// ("" lets the backend auto-detect where supported).
	Transcribe(ctx context.Context, data []byte, mimeType, languageHint string) (Result, error)
	Close() error
}
