package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omnihear/omnihear/internal/audio"
	"github.com/omnihear/omnihear/internal/cascade"
	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/prompts"
	"github.com/omnihear/omnihear/internal/providers/llm"
	"github.com/omnihear/omnihear/internal/providers/stt"
	"github.com/omnihear/omnihear/internal/utils"
)

// Stage names used for error attribution on records and outbound messages.
const (
	StageNormalize     = "normalization"
	StageTranscription = "transcription"
	StagePrompt        = "prompt"
	StageGeneration    = "generation"
)

// GenCandidate pairs a generation provider with one of its model ids.
type GenCandidate struct {
	Provider llm.Provider
	Model    string
}

// Pipeline runs one dispatch end to end: normalize → transcription cascade →
// prompt selection → generation cascade. It holds no per-user state and is
// safe for concurrent use across worker goroutines.
type Pipeline struct {
	Normalizer *audio.Normalizer
	STT        []stt.Provider
	Generation map[models.Tier][]GenCandidate

	STTTimeout time.Duration
	GenTimeout time.Duration
	Params     llm.Params

	Log *logrus.Logger
}

// Run executes the pipeline for one job. The returned result is non-nil even
// on error so the caller can persist the attempted-candidate trail; the
// error's Op names the stage that exhausted.
func (p *Pipeline) Run(ctx context.Context, job *models.DispatchJob) (*models.ProcessingResult, []string, error) {
	res := &models.ProcessingResult{
		DispatchID:     job.DispatchID,
		SessionVersion: job.SessionVersion,
	}
	var attempted []string

	log := p.Log.WithFields(logrus.Fields{
		"dispatch_id": job.DispatchID,
		"user_id":     job.UserID,
		"mode":        string(job.Mode),
		"tier":        string(job.Tier),
	})

	spec, ok := models.ModeByID(string(job.Mode))
	if !ok {
		return res, attempted, utils.E(utils.CodeInvalidArgument, StagePrompt, "unknown processing mode", nil)
	}

	// Normalization failure is recovered via passthrough, never fatal.
	norm, err := p.Normalizer.Normalize(job.Audio, job.MimeType)
	if err != nil {
		log.WithFields(logrus.Fields{
			"stage":       StageNormalize,
			"passthrough": norm.Passthrough,
			"mime":        norm.MimeType,
		}).WithError(err).Warn("normalization failed, passing original bytes through")
	}

	hint := job.SourceLanguage
	sttOut, err := cascade.Run(ctx, log, StageTranscription,
		func(r stt.Result) bool { return strings.TrimSpace(r.Text) == "" },
		p.sttCandidates(norm, hint))
	attempted = append(attempted, sttOut.Attempted...)
	if err != nil {
		return res, attempted, exhaustedError(StageTranscription, err)
	}
	res.Transcript = sttOut.Value.Text
	res.Provenance.STTProvider = sttOut.Provider
	res.Provenance.DetectedLanguage = sttOut.Value.DetectedLanguage

	outputLang := job.TargetLanguage
	if spec.Languages == models.LangOutput && (outputLang == "" || outputLang == "auto") {
		// Derive the output language from the clip itself.
		outputLang = sttOut.Value.DetectedLanguage
		if outputLang == "" {
			outputLang = "en"
		}
	}

	instruction, err := prompts.Select(spec, job.Tier, job.SourceLanguage, outputLang)
	if err != nil {
		return res, attempted, err
	}

	genCands, fallback := p.genCandidates(job.Tier)
	genOut, err := cascade.Run(ctx, log, StageGeneration,
		func(s string) bool { return strings.TrimSpace(s) == "" },
		p.buildGenAttempts(genCands, instruction, res.Transcript))
	attempted = append(attempted, genOut.Attempted...)
	if err != nil {
		return res, attempted, exhaustedError(StageGeneration, err)
	}

	res.OutputText = genOut.Value
	res.Provenance.LLMProvider = genOut.Provider
	res.Provenance.LLMModel = genOut.Model
	res.Provenance.Fallback = fallback
	return res, attempted, nil
}

func (p *Pipeline) sttCandidates(norm audio.Result, languageHint string) []cascade.Candidate[stt.Result] {
	cands := make([]cascade.Candidate[stt.Result], 0, len(p.STT))
	for _, provider := range p.STT {
		provider := provider
		cands = append(cands, cascade.Candidate[stt.Result]{
			Provider: provider.ID(),
			Timeout:  p.STTTimeout,
			Attempt: func(ctx context.Context) (stt.Result, error) {
				return provider.Transcribe(ctx, norm.Data, norm.MimeType, languageHint)
			},
		})
	}
	return cands
}

// genCandidates selects the tier's ordered list. A tier whose list is empty
// (all its entries were disabled, e.g. missing credentials) falls back to
// the other tier's list; the caller surfaces that as a provenance flag.
func (p *Pipeline) genCandidates(tier models.Tier) ([]GenCandidate, bool) {
	if cands := p.Generation[tier]; len(cands) > 0 {
		return cands, false
	}
	alt := models.TierFast
	if tier == models.TierFast {
		alt = models.TierComplex
	}
	return p.Generation[alt], true
}

func (p *Pipeline) buildGenAttempts(cands []GenCandidate, instruction, transcript string) []cascade.Candidate[string] {
	out := make([]cascade.Candidate[string], 0, len(cands))
	for _, gc := range cands {
		gc := gc
		out = append(out, cascade.Candidate[string]{
			Provider: gc.Provider.ID(),
			Model:    gc.Model,
			Timeout:  p.GenTimeout,
			Attempt: func(ctx context.Context) (string, error) {
				return gc.Provider.Generate(ctx, gc.Model, instruction, transcript, p.Params)
			},
		})
	}
	return out
}

// exhaustedError converts a cascade exhaustion into the shared taxonomy,
// keeping the rate-limit case distinguishable from the generic one.
func exhaustedError(stage string, err error) error {
	kind := cascade.KindUnknown
	var ex *cascade.ExhaustedError
	if errors.As(err, &ex) {
		kind = ex.Kind()
	}

	var msg string
	switch kind {
	case cascade.KindRateLimited:
		msg = "all " + stage + " backends are rate limited, try again later"
	case cascade.KindPermissionDenied:
		msg = "no " + stage + " backend accepted the configured credentials"
	case cascade.KindInvalidInput:
		msg = "no " + stage + " backend accepted this input"
	default:
		msg = "all " + stage + " backends failed"
	}
	return utils.E(kind.Code(), stage, msg, err)
}
