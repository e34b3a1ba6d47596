package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/omnihear/omnihear/internal/audio"
	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/providers/stt"
	"github.com/omnihear/omnihear/internal/session"
	"github.com/omnihear/omnihear/internal/utils"
	"github.com/omnihear/omnihear/internal/workflow"
)

type fakeSessionStore struct {
	sess *models.AudioSession
	err  error
}

func (f *fakeSessionStore) Put(ctx context.Context, userID string, data []byte, mimeType string, size int64) (*models.AudioSession, error) {
	return f.sess, nil
}

func (f *fakeSessionStore) Get(ctx context.Context, userID string) (*models.AudioSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

func (f *fakeSessionStore) Clear(ctx context.Context, userID string) error { return nil }

type captureRecords struct {
	recs []*models.DispatchRecord
}

func (c *captureRecords) Insert(ctx context.Context, rec *models.DispatchRecord) error {
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureRecords) ListByUser(ctx context.Context, userID string, limit int) ([]models.DispatchRecord, error) {
	return nil, nil
}

func (c *captureRecords) GetByDispatchID(ctx context.Context, dispatchID string) (*models.DispatchRecord, error) {
	return nil, errors.New("not found")
}

type captureArchive struct {
	docs []*models.DispatchArchive
}

func (c *captureArchive) Insert(ctx context.Context, doc *models.DispatchArchive) error {
	c.docs = append(c.docs, doc)
	return nil
}

func (c *captureArchive) GetByDispatchID(ctx context.Context, dispatchID string) (*models.DispatchArchive, error) {
	return nil, errors.New("not found")
}

// deadRedis points at a closed port; publishes fail fast and are logged,
// which is the non-fatal path the service takes on a bus outage.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
}

func newStaleHarness(store session.Store) (DispatchService, *captureRecords, *captureArchive) {
	sttP := &fakeSTT{id: "a", result: stt.Result{Text: "hello world."}}
	gen := &fakeLLM{id: "g", output: "Hello world."}
	p := &Pipeline{
		Normalizer: audio.NewNormalizer(),
		STT:        []stt.Provider{sttP},
		Generation: map[models.Tier][]GenCandidate{models.TierFast: {{Provider: gen, Model: "m"}}},
		Log:        quietLog(),
	}

	records := &captureRecords{}
	archive := &captureArchive{}
	svc := NewDispatchService(DispatchDeps{
		Redis:    deadRedis(),
		Pipeline: p,
		Store:    store,
		Machine:  workflow.NewMachine(store, quietLog()),
		Records:  records,
		Archive:  archive,
		Logger:   quietLog(),
	})
	return svc, records, archive
}

func TestProcessDiscardsStaleResult(t *testing.T) {
	t.Parallel()

	// The clip was replaced while the job was in flight: the live session
	// carries a rotated token.
	store := &fakeSessionStore{sess: &models.AudioSession{UserID: "u1", Version: "v2"}}
	svc, records, archive := newStaleHarness(store)

	job := testJob(models.ModeTranscript, models.TierFast, "", "")
	svc.Process(context.Background(), job)

	if len(records.recs) != 1 {
		t.Fatalf("expected one record, got %d", len(records.recs))
	}
	if records.recs[0].Status != "stale" {
		t.Fatalf("superseded result must be recorded stale, got %q", records.recs[0].Status)
	}
	if len(archive.docs) != 1 || !archive.docs[0].Stale {
		t.Fatal("superseded result must be archived flagged stale")
	}
}

func TestProcessTreatsClearedSessionAsStale(t *testing.T) {
	t.Parallel()

	store := &fakeSessionStore{err: utils.E(utils.CodeSessionExpired, "SessionStore.Get", "no audio session for this user", nil)}
	svc, records, _ := newStaleHarness(store)

	svc.Process(context.Background(), testJob(models.ModeTranscript, models.TierFast, "", ""))

	if len(records.recs) != 1 || records.recs[0].Status != "stale" {
		t.Fatalf("cleared-session result must be recorded stale, got %+v", records.recs)
	}
}

func TestProcessDeliversMatchingVersion(t *testing.T) {
	t.Parallel()

	store := &fakeSessionStore{sess: &models.AudioSession{UserID: "u1", Version: "v1"}}
	svc, records, archive := newStaleHarness(store)

	svc.Process(context.Background(), testJob(models.ModeTranscript, models.TierFast, "", ""))

	if len(records.recs) != 1 || records.recs[0].Status != "done" {
		t.Fatalf("matching version must complete, got %+v", records.recs)
	}
	if len(archive.docs) != 1 || archive.docs[0].Stale {
		t.Fatal("completed result must not be archived stale")
	}
}

func TestBuildHeader(t *testing.T) {
	t.Parallel()

	spec, _ := models.ModeByID("summary-brief")
	job := &models.DispatchJob{TargetLanguage: "fa"}
	res := &models.ProcessingResult{}

	h := buildHeader(spec, job, res)
	if !strings.Contains(h, "Brief Summary") || !strings.Contains(h, "fa") {
		t.Fatalf("unexpected header: %q", h)
	}
	if !strings.HasSuffix(h, "\n\n") {
		t.Fatalf("header must end with a paragraph break: %q", h)
	}

	// No explicit target: the detected language fills in.
	job2 := &models.DispatchJob{}
	res2 := &models.ProcessingResult{Provenance: models.Provenance{DetectedLanguage: "en"}}
	if h2 := buildHeader(spec, job2, res2); !strings.Contains(h2, "en") {
		t.Fatalf("detected language missing from header: %q", h2)
	}
}

func TestBuildFooter(t *testing.T) {
	t.Parallel()

	res := &models.ProcessingResult{Provenance: models.Provenance{
		STTProvider: "google-speech",
		LLMProvider: "vertex-gemini",
		LLMModel:    "gemini-1.5-pro",
	}}
	f := buildFooter(res)
	if !strings.Contains(f, "google-speech") || !strings.Contains(f, "vertex-gemini/gemini-1.5-pro") {
		t.Fatalf("unexpected footer: %q", f)
	}
	if strings.Contains(f, "tier fallback") {
		t.Fatal("fallback marker present without fallback")
	}

	res.Provenance.Fallback = true
	if f := buildFooter(res); !strings.Contains(f, "tier fallback") {
		t.Fatalf("fallback marker missing: %q", f)
	}
}

func TestSafeMessage(t *testing.T) {
	t.Parallel()

	err := utils.E(utils.CodeRateLimited, "transcription", "all transcription backends are rate limited, try again later", errors.New("rpc error: quota exceeded for project 12345"))
	msg := safeMessage(err)
	if strings.Contains(msg, "12345") {
		t.Fatalf("provider internals leaked: %q", msg)
	}
	if !strings.Contains(msg, "rate limited") {
		t.Fatalf("safe message lost its meaning: %q", msg)
	}

	if got := safeMessage(errors.New("raw")); got != "processing failed" {
		t.Fatalf("non-taxonomy errors must collapse to the generic message, got %q", got)
	}
}
