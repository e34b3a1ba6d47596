package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/omnihear/omnihear/internal/assemble"
	"github.com/omnihear/omnihear/internal/cache"
	"github.com/omnihear/omnihear/internal/models"
	mongorepo "github.com/omnihear/omnihear/internal/repositories/mongo"
	pgrepo "github.com/omnihear/omnihear/internal/repositories/postgres"
	"github.com/omnihear/omnihear/internal/session"
	"github.com/omnihear/omnihear/internal/storage"
	"github.com/omnihear/omnihear/internal/utils"
	"github.com/omnihear/omnihear/internal/workflow"
)

const DefaultDispatchStream = "dispatch:stream"

func ResponseChannel(userID string) string { return "user:" + userID + ":response" }
func StatusChannel(userID string) string   { return "user:" + userID + ":status" }

// DispatchService queues fully parameterized requests and processes them:
// pipeline run, staleness check, result cache, persistence, delivery.
type DispatchService interface {
	Enqueue(ctx context.Context, d *workflow.Dispatch) (string, error)
	Process(ctx context.Context, job *models.DispatchJob)
}

type dispatchService struct {
	redis    *redis.Client
	pipeline *Pipeline
	store    session.Store
	machine  *workflow.Machine

	results  *cache.ResultCache
	records  pgrepo.DispatchRepository
	archive  mongorepo.ArchiveRepository
	archiver storage.Archiver // optional

	stream     string
	maxChunk   int
	archiveTTL time.Duration
	log        *logrus.Logger
}

type DispatchDeps struct {
	Redis    *redis.Client
	Pipeline *Pipeline
	Store    session.Store
	Machine  *workflow.Machine
	Results  *cache.ResultCache
	Records  pgrepo.DispatchRepository
	Archive  mongorepo.ArchiveRepository
	Archiver storage.Archiver

	Stream     string
	MaxChunk   int
	ArchiveTTL time.Duration
	Logger     *logrus.Logger
}

func NewDispatchService(d DispatchDeps) DispatchService {
	if d.Stream == "" {
		d.Stream = DefaultDispatchStream
	}
	if d.MaxChunk <= 0 {
		d.MaxChunk = assemble.DefaultMaxChunk
	}
	if d.ArchiveTTL <= 0 {
		d.ArchiveTTL = 72 * time.Hour
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return &dispatchService{
		redis:    d.Redis,
		pipeline: d.Pipeline,
		store:    d.Store,
		machine:  d.Machine,
		results:  d.Results,
		records:  d.Records,
		archive:  d.Archive,
		archiver: d.Archiver,

		stream:     d.Stream,
		maxChunk:   d.MaxChunk,
		archiveTTL: d.ArchiveTTL,
		log:        d.Logger,
	}
}

// Enqueue puts one dispatch job on the stream. The audio travels with the
// job so the worker never re-reads mutable session state.
func (s *dispatchService) Enqueue(ctx context.Context, d *workflow.Dispatch) (string, error) {
	const op = "DispatchService.Enqueue"

	dispatchID := uuid.NewString()
	fields := map[string]any{
		"dispatch_id":     dispatchID,
		"user_id":         d.UserID,
		"mode":            string(d.Mode.ID),
		"tier":            string(d.Tier),
		"source_language": d.SourceLanguage,
		"target_language": d.TargetLanguage,
		"session_version": d.Session.Version,
		"mime_type":       d.Session.MimeType,
		"audio_base64":    base64.StdEncoding.EncodeToString(d.Session.Data),
		"ts_unix":         strconv.FormatInt(time.Now().UTC().Unix(), 10),
	}

	if err := s.redis.XAdd(ctx, &redis.XAddArgs{Stream: s.stream, Values: fields}).Err(); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to enqueue dispatch", err)
	}
	s.publishStatus(ctx, d.UserID, dispatchID, "queued", "", "dispatch queued")
	return dispatchID, nil
}

// Process runs one job to completion. Per-candidate failures never reach
// here; only cascade exhaustion and workflow-level errors do, and each is
// recorded and surfaced with its stage.
func (s *dispatchService) Process(ctx context.Context, job *models.DispatchJob) {
	log := s.log.WithFields(logrus.Fields{
		"dispatch_id": job.DispatchID,
		"user_id":     job.UserID,
		"mode":        string(job.Mode),
	})
	if !job.EnqueuedAt.IsZero() {
		log = log.WithField("queue_ms", time.Since(job.EnqueuedAt).Milliseconds())
	}
	s.publishStatus(ctx, job.UserID, job.DispatchID, "processing", "", "dispatch processing")

	start := time.Now()
	key := cache.Key(job.SessionVersion, string(job.Mode), string(job.Tier), job.SourceLanguage, job.TargetLanguage)

	var res *models.ProcessingResult
	var attempted []string
	cached := false

	if s.results != nil {
		if hit, ok, err := s.results.Get(ctx, key); err != nil {
			log.WithError(err).Warn("result cache lookup failed")
		} else if ok {
			res, cached = hit, true
			log.Info("dispatch served from result cache")
		}
	}

	if res == nil {
		var err error
		res, attempted, err = s.pipeline.Run(ctx, job)
		if err != nil {
			s.finishFailed(ctx, job, attempted, err, time.Since(start), log)
			return
		}
		if s.results != nil {
			if err := s.results.Set(ctx, key, res); err != nil {
				log.WithError(err).Warn("result cache store failed")
			}
		}
	}

	// A result for a superseded or cleared clip must never be attributed to
	// the current session: archive it flagged stale and deliver nothing.
	if s.isStale(ctx, job) {
		log.WithField("session_version", job.SessionVersion).Info("discarding stale dispatch result")
		s.persist(ctx, job, res, attempted, "stale", "", "", time.Since(start), "", log)
		s.machine.Complete(job.UserID)
		return
	}

	audioURL := s.offloadAudio(ctx, job, log)
	s.deliver(ctx, job, res, log)
	s.persist(ctx, job, res, attempted, "done", "", "", time.Since(start), audioURL, log)
	if !cached {
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("dispatch completed")
	}
	s.machine.Complete(job.UserID)
}

func (s *dispatchService) isStale(ctx context.Context, job *models.DispatchJob) bool {
	cur, err := s.store.Get(ctx, job.UserID)
	if err != nil {
		return true // session cleared while in flight
	}
	return cur.Version != job.SessionVersion
}

func (s *dispatchService) finishFailed(ctx context.Context, job *models.DispatchJob, attempted []string, err error, dur time.Duration, log *logrus.Entry) {
	code := utils.CodeOf(err)
	stage := "dispatch"
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Op != "" {
		stage = ae.Op
	}

	log.WithFields(logrus.Fields{"stage": stage, "code": string(code)}).WithError(err).Error("dispatch failed")
	s.persist(ctx, job, nil, attempted, "failed", string(code), stage, dur, "", log)
	s.publishStatus(ctx, job.UserID, job.DispatchID, "failed", string(code), safeMessage(err))
	// The session stays intact and the workflow returns to mode selection,
	// so the same clip can be retried without re-uploading.
	s.machine.Complete(job.UserID)
}

func (s *dispatchService) deliver(ctx context.Context, job *models.DispatchJob, res *models.ProcessingResult, log *logrus.Entry) {
	spec, _ := models.ModeByID(string(job.Mode))
	chunks := assemble.Assemble(buildHeader(spec, job, res), res.OutputText, buildFooter(res), s.maxChunk)

	prov, _ := json.Marshal(map[string]any{
		"type":              "provenance",
		"dispatch_id":       job.DispatchID,
		"stt_provider":      res.Provenance.STTProvider,
		"llm_provider":      res.Provenance.LLMProvider,
		"llm_model":         res.Provenance.LLMModel,
		"fallback":          res.Provenance.Fallback,
		"detected_language": res.Provenance.DetectedLanguage,
	})
	s.publish(ctx, ResponseChannel(job.UserID), prov)

	for i, chunk := range chunks {
		payload, _ := json.Marshal(map[string]any{
			"type":        "result_chunk",
			"dispatch_id": job.DispatchID,
			"seq":         i + 1,
			"total":       len(chunks),
			"text":        chunk,
		})
		s.publish(ctx, ResponseChannel(job.UserID), payload)
	}
	s.publishStatus(ctx, job.UserID, job.DispatchID, "done", "", "dispatch complete")
	log.WithField("chunks", len(chunks)).Info("dispatch result delivered")
}

func (s *dispatchService) persist(ctx context.Context, job *models.DispatchJob, res *models.ProcessingResult, attempted []string, status, errCode, errStage string, dur time.Duration, audioURL string, log *logrus.Entry) {
	rec := &models.DispatchRecord{
		DispatchID:     job.DispatchID,
		UserID:         job.UserID,
		SessionVersion: job.SessionVersion,
		Mode:           string(job.Mode),
		Tier:           string(job.Tier),
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
		Status:         status,
		ErrorCode:      errCode,
		ErrorStage:     errStage,
		Attempted:      attempted,
		AudioURL:       audioURL,
		DurationMS:     dur.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if res != nil {
		if b, err := json.Marshal(res.Provenance); err == nil {
			rec.Provenance = datatypes.JSON(b)
		}
	}
	if s.records != nil {
		if err := s.records.Insert(ctx, rec); err != nil {
			log.WithError(err).Warn("failed to insert dispatch record")
		}
	}

	if s.archive != nil && res != nil {
		now := time.Now().UTC()
		doc := &models.DispatchArchive{
			DispatchID: job.DispatchID,
			UserID:     job.UserID,
			Mode:       string(job.Mode),
			Transcript: res.Transcript,
			OutputText: res.OutputText,
			Stale:      status == "stale",
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.archiveTTL),
		}
		if err := s.archive.Insert(ctx, doc); err != nil {
			log.WithError(err).Warn("failed to archive dispatch texts")
		}
	}
}

func (s *dispatchService) offloadAudio(ctx context.Context, job *models.DispatchJob, log *logrus.Entry) string {
	if s.archiver == nil || len(job.Audio) == 0 {
		return ""
	}
	object := fmt.Sprintf("audio/%s/%s.bin", job.UserID, job.DispatchID)
	url, err := s.archiver.Archive(ctx, object, job.MimeType, bytes.NewReader(job.Audio))
	if err != nil {
		log.WithError(err).Warn("audio offload failed")
		return ""
	}
	return url
}

func (s *dispatchService) publish(ctx context.Context, channel string, payload []byte) {
	if err := s.redis.Publish(ctx, channel, string(payload)).Err(); err != nil {
		s.log.WithError(err).WithField("channel", channel).Warn("publish failed")
	}
}

func (s *dispatchService) publishStatus(ctx context.Context, userID, dispatchID, status, code, msg string) {
	payload, _ := json.Marshal(map[string]any{
		"type":        "status",
		"dispatch_id": dispatchID,
		"status":      status,
		"code":        code,
		"message":     msg,
	})
	s.publish(ctx, StatusChannel(userID), payload)
}

func buildHeader(spec models.ModeSpec, job *models.DispatchJob, res *models.ProcessingResult) string {
	lang := job.TargetLanguage
	if lang == "" {
		lang = res.Provenance.DetectedLanguage
	}
	if lang == "" {
		return fmt.Sprintf("**%s**\n\n", spec.Label)
	}
	return fmt.Sprintf("**%s** · %s\n\n", spec.Label, lang)
}

func buildFooter(res *models.ProcessingResult) string {
	f := fmt.Sprintf("\n\n---\nstt: %s · llm: %s/%s",
		res.Provenance.STTProvider, res.Provenance.LLMProvider, res.Provenance.LLMModel)
	if res.Provenance.Fallback {
		f += " · tier fallback"
	}
	return f
}

// safeMessage surfaces the AppError message only; wrapped provider errors
// stay in the logs.
func safeMessage(err error) string {
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "processing failed"
}
