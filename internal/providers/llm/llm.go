package llm

import "context"

// Params are the generation knobs the pipeline controls per request.
type Params struct {
	Temperature     float32
	MaxOutputTokens int32
}

// Provider is the abstraction over any text-generation backend. One provider
// serves many model ids; the cascade picks the model per candidate.
type Provider interface {
	ID() string
	Generate(ctx context.Context, model, instruction, input string, p Params) (string, error)
	Close() error
}
