package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/omnihear/omnihear/internal/audio"
	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/providers/llm"
	"github.com/omnihear/omnihear/internal/providers/stt"
	"github.com/omnihear/omnihear/internal/utils"
)

type fakeSTT struct {
	id       string
	result   stt.Result
	err      error
	calls    int
	lastHint string
}

func (f *fakeSTT) ID() string   { return f.id }
func (f *fakeSTT) Close() error { return nil }
func (f *fakeSTT) Transcribe(ctx context.Context, data []byte, mimeType, languageHint string) (stt.Result, error) {
	f.calls++
	f.lastHint = languageHint
	return f.result, f.err
}

type fakeLLM struct {
	id     string
	output string
	err    error
	calls  int

	lastModel       string
	lastInstruction string
	lastInput       string
}

func (f *fakeLLM) ID() string   { return f.id }
func (f *fakeLLM) Close() error { return nil }
func (f *fakeLLM) Generate(ctx context.Context, model, instruction, input string, p llm.Params) (string, error) {
	f.calls++
	f.lastModel = model
	f.lastInstruction = instruction
	f.lastInput = input
	return f.output, f.err
}

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testJob(mode models.Mode, tier models.Tier, source, target string) *models.DispatchJob {
	return &models.DispatchJob{
		DispatchID:     "d1",
		UserID:         "u1",
		Mode:           mode,
		Tier:           tier,
		SourceLanguage: source,
		TargetLanguage: target,
		SessionVersion: "v1",
		MimeType:       "audio/ogg",
		Audio:          append([]byte("OggS"), make([]byte, 16)...),
	}
}

func TestPipelineSTTFallback(t *testing.T) {
	t.Parallel()

	primary := &fakeSTT{id: "google-speech", err: errors.New("connection reset")}
	secondary := &fakeSTT{id: "vertex-gemini", result: stt.Result{Text: "hello world.", DetectedLanguage: "en"}}
	gen := &fakeLLM{id: "vertex-gemini", output: "Hello world."}

	p := &Pipeline{
		Normalizer: audio.NewNormalizer(),
		STT:        []stt.Provider{primary, secondary},
		Generation: map[models.Tier][]GenCandidate{
			models.TierFast: {{Provider: gen, Model: "gemini-2.0-flash"}},
		},
		Log: quietLog(),
	}

	res, attempted, err := p.Run(context.Background(), testJob(models.ModeTranscript, models.TierFast, "", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Transcript != "hello world." {
		t.Fatalf("unexpected transcript: %q", res.Transcript)
	}
	if res.OutputText != "Hello world." {
		t.Fatalf("unexpected output: %q", res.OutputText)
	}
	if res.Provenance.STTProvider != "vertex-gemini" {
		t.Fatalf("provenance must name the fallback winner, got %q", res.Provenance.STTProvider)
	}
	if res.Provenance.LLMModel != "gemini-2.0-flash" {
		t.Fatalf("unexpected model provenance: %q", res.Provenance.LLMModel)
	}
	if primary.calls != 1 || secondary.calls != 1 || gen.calls != 1 {
		t.Fatalf("unexpected call counts: %d/%d/%d", primary.calls, secondary.calls, gen.calls)
	}
	if len(attempted) != 3 {
		t.Fatalf("expected full attempted trail, got %v", attempted)
	}
}

func TestPipelineEmptyTranscriptCascades(t *testing.T) {
	t.Parallel()

	primary := &fakeSTT{id: "a", result: stt.Result{Text: "   \n"}}
	secondary := &fakeSTT{id: "b", result: stt.Result{Text: "real words"}}
	gen := &fakeLLM{id: "g", output: "out"}

	p := &Pipeline{
		Normalizer: audio.NewNormalizer(),
		STT:        []stt.Provider{primary, secondary},
		Generation: map[models.Tier][]GenCandidate{models.TierFast: {{Provider: gen, Model: "m"}}},
		Log:        quietLog(),
	}

	res, _, err := p.Run(context.Background(), testJob(models.ModeTranscript, models.TierFast, "", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Transcript != "real words" {
		t.Fatalf("whitespace transcript was accepted: %q", res.Transcript)
	}
}

func TestPipelineTranscriptionExhaustedRateLimited(t *testing.T) {
	t.Parallel()

	limited := &fakeSTT{id: "a", err: utils.E(utils.CodeRateLimited, "fake", "quota", nil)}
	broken := &fakeSTT{id: "b", err: errors.New("boom")}
	gen := &fakeLLM{id: "g", output: "out"}

	p := &Pipeline{
		Normalizer: audio.NewNormalizer(),
		STT:        []stt.Provider{limited, broken},
		Generation: map[models.Tier][]GenCandidate{models.TierFast: {{Provider: gen, Model: "m"}}},
		Log:        quietLog(),
	}

	_, attempted, err := p.Run(context.Background(), testJob(models.ModeTranscript, models.TierFast, "", ""))
	if !utils.IsCode(err, utils.CodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED to win the summary, got %v", err)
	}
	var ae *utils.AppError
	if !errors.As(err, &ae) || ae.Op != StageTranscription {
		t.Fatalf("error must carry the failing stage, got %v", err)
	}
	if !strings.Contains(ae.Message, "rate limited") {
		t.Fatalf("message should mention rate limiting: %q", ae.Message)
	}
	if gen.calls != 0 {
		t.Fatal("generation ran after transcription exhausted")
	}
	if len(attempted) != 2 {
		t.Fatalf("unexpected attempted trail: %v", attempted)
	}
}

func TestPipelineDerivesOutputLanguage(t *testing.T) {
	t.Parallel()

	sttP := &fakeSTT{id: "a", result: stt.Result{Text: "گزارش روزانه", DetectedLanguage: "fa"}}
	gen := &fakeLLM{id: "g", output: "خلاصه"}

	p := &Pipeline{
		Normalizer: audio.NewNormalizer(),
		STT:        []stt.Provider{sttP},
		Generation: map[models.Tier][]GenCandidate{models.TierFast: {{Provider: gen, Model: "m"}}},
		Log:        quietLog(),
	}

	// summary-brief needs an output language; "auto" defers to detection.
	res, _, err := p.Run(context.Background(), testJob(models.ModeSummaryBrief, models.TierFast, "", "auto"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gen.lastInstruction, "Persian (Farsi)") {
		t.Fatalf("detected language not woven into instruction: %q", gen.lastInstruction)
	}
	if gen.lastInput != "گزارش روزانه" {
		t.Fatalf("transcript not passed to generation: %q", gen.lastInput)
	}
	if res.Provenance.DetectedLanguage != "fa" {
		t.Fatalf("detected language missing from provenance: %q", res.Provenance.DetectedLanguage)
	}
}

func TestPipelineTierFallbackFlagged(t *testing.T) {
	t.Parallel()

	sttP := &fakeSTT{id: "a", result: stt.Result{Text: "words"}}
	gen := &fakeLLM{id: "g", output: "out"}

	p := &Pipeline{
		Normalizer: audio.NewNormalizer(),
		STT:        []stt.Provider{sttP},
		// complex list empty: fast serves as the fallback tier.
		Generation: map[models.Tier][]GenCandidate{models.TierFast: {{Provider: gen, Model: "m"}}},
		Log:        quietLog(),
	}

	res, _, err := p.Run(context.Background(), testJob(models.ModeClinicalNote, models.TierComplex, "", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Provenance.Fallback {
		t.Fatal("cross-tier fallback must be flagged in provenance")
	}
}

func TestPipelineUnknownMode(t *testing.T) {
	t.Parallel()

	p := &Pipeline{Normalizer: audio.NewNormalizer(), Log: quietLog()}
	_, _, err := p.Run(context.Background(), testJob("no-such-mode", models.TierFast, "", ""))
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}
