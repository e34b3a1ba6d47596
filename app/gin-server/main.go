package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/omnihear/omnihear/config"
	"github.com/omnihear/omnihear/internal/api/handlers"
	"github.com/omnihear/omnihear/internal/api/middleware"
	"github.com/omnihear/omnihear/internal/api/routes"
	"github.com/omnihear/omnihear/internal/audio"
	"github.com/omnihear/omnihear/internal/cache"
	"github.com/omnihear/omnihear/internal/logger"
	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/providers/llm"
	"github.com/omnihear/omnihear/internal/providers/stt"
	mongorepo "github.com/omnihear/omnihear/internal/repositories/mongo"
	pgrepo "github.com/omnihear/omnihear/internal/repositories/postgres"
	"github.com/omnihear/omnihear/internal/services"
	"github.com/omnihear/omnihear/internal/session"
	"github.com/omnihear/omnihear/internal/storage"
	"github.com/omnihear/omnihear/internal/workers"
	"github.com/omnihear/omnihear/internal/workflow"
)

const defaultMaxAudioBytes = 20 << 20

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()
	lg := logger.New()

	maxAudioBytes := envInt64("MAX_AUDIO_BYTES", defaultMaxAudioBytes)
	maxChunk := int(envInt64("MAX_CHUNK_CHARS", 4000))
	archiveTTL := time.Duration(envInt64("ARCHIVE_TTL_HOURS", 72)) * time.Hour
	numWorkers := int(envInt64("DISPATCH_WORKERS", 5))

	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	lg.Info("MongoDB connected")
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}

	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	lg.Info("PostgreSQL connected")
	if err := config.PostgresDB.AutoMigrate(&models.DispatchRecord{}); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}

	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	lg.Info("Redis connected")

	ctx := context.Background()

	store := session.NewMemoryStore(maxAudioBytes)
	machine := workflow.NewMachine(store, lg)

	pipeline := buildPipeline(ctx, lg)

	var archiver storage.Archiver
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		a, err := storage.NewGCSArchiver(ctx, bucket)
		if err != nil {
			lg.WithError(err).Warn("GCS archiver disabled")
		} else {
			archiver = a
		}
	}

	records := pgrepo.NewDispatchRepo(config.PostgresDB)
	archive := mongorepo.NewArchiveRepo(config.MongoDatabase())
	results := cache.NewResultCache(config.RedisClient, time.Hour)

	dispatch := services.NewDispatchService(services.DispatchDeps{
		Redis:    config.RedisClient,
		Pipeline: pipeline,
		Store:    store,
		Machine:  machine,
		Results:  results,
		Records:  records,
		Archive:  archive,
		Archiver: archiver,

		MaxChunk:   maxChunk,
		ArchiveTTL: archiveTTL,
		Logger:     lg,
	})
	audioSvc := services.NewAudioService(store, machine, maxAudioBytes, lg)

	pool := &workers.DispatchWorkerPool{
		Redis:      config.RedisClient,
		Dispatch:   dispatch,
		NumWorkers: numWorkers,
		Logger:     lg,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("worker pool error: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(lg))
	routes.RegisterRoutes(r, routes.Deps{
		Audio:   handlers.NewAudioHandler(audioSvc, maxAudioBytes),
		Event:   handlers.NewEventHandler(machine, dispatch),
		History: handlers.NewHistoryHandler(records, archive),
		WS:      handlers.NewWSHandler(config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildPipeline wires the transcription and generation cascades. Backends
// with missing credentials are skipped rather than failing startup; the
// pipeline cascades over whatever remains.
func buildPipeline(ctx context.Context, lg *logrus.Logger) *services.Pipeline {
	project := os.Getenv("GOOGLE_PROJECT_ID")
	location := os.Getenv("GOOGLE_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	var sttProviders []stt.Provider
	if gs, err := stt.NewGoogleSpeech(ctx); err != nil {
		lg.WithError(err).Warn("google speech disabled")
	} else {
		sttProviders = append(sttProviders, gs)
	}
	if project != "" {
		if ga, err := stt.NewGeminiAudio(ctx, project, location, "gemini-2.0-flash"); err != nil {
			lg.WithError(err).Warn("gemini audio transcription disabled")
		} else {
			sttProviders = append(sttProviders, ga)
		}
	}

	generation := map[models.Tier][]services.GenCandidate{}
	if project != "" {
		vg, err := llm.NewVertexGemini(ctx, project, location)
		if err != nil {
			lg.WithError(err).Warn("vertex generation disabled")
		} else {
			generation[models.TierComplex] = []services.GenCandidate{
				{Provider: vg, Model: "gemini-1.5-pro"},
				{Provider: vg, Model: "gemini-2.0-flash"},
				{Provider: vg, Model: "gemini-1.5-flash"},
			}
			generation[models.TierFast] = []services.GenCandidate{
				{Provider: vg, Model: "gemini-2.0-flash"},
				{Provider: vg, Model: "gemini-1.5-flash"},
			}
		}
	}

	return &services.Pipeline{
		Normalizer: audio.NewNormalizer(),
		STT:        sttProviders,
		Generation: generation,
		Params:     llm.Params{Temperature: 0.7, MaxOutputTokens: 8192},
		Log:        lg,
	}
}
