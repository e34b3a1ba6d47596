package workers

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/services"
)

// DispatchWorkerPool consumes dispatch jobs from a Redis stream through a
// consumer group. Each worker goroutine runs jobs one at a time; one user's
// slow cascade never blocks another user because jobs for different users
// land on whichever consumer is free.
type DispatchWorkerPool struct {
	Redis      *redis.Client
	Dispatch   services.DispatchService
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *DispatchWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Dispatch == nil {
		return errors.New("DispatchWorkerPool missing dependency: Redis/Dispatch must be set")
	}
	if p.Stream == "" {
		p.Stream = services.DefaultDispatchStream
	}
	if p.Group == "" {
		p.Group = "dispatch-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 5
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *DispatchWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *DispatchWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	job := &models.DispatchJob{
		DispatchID:     getStr("dispatch_id"),
		UserID:         getStr("user_id"),
		Mode:           models.Mode(getStr("mode")),
		Tier:           models.Tier(getStr("tier")),
		SourceLanguage: getStr("source_language"),
		TargetLanguage: getStr("target_language"),
		SessionVersion: getStr("session_version"),
		MimeType:       getStr("mime_type"),
	}
	if job.DispatchID == "" || job.UserID == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":    msg.ID,
		"dispatch_id": job.DispatchID,
		"user_id":     job.UserID,
	})

	raw := getStr("audio_base64")
	if raw == "" {
		log.Warn("dispatch job without audio payload")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		log.WithError(err).Warn("audio_base64 decode failed")
		return
	}
	job.Audio = decoded

	if ts, err := strconv.ParseInt(getStr("ts_unix"), 10, 64); err == nil {
		job.EnqueuedAt = time.Unix(ts, 0).UTC()
	}

	p.Dispatch.Process(ctx, job)
}
