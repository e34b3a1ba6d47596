package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/session"
	"github.com/omnihear/omnihear/internal/utils"
	"github.com/omnihear/omnihear/internal/workflow"
)

// AudioService accepts uploads into the session store and resets the user's
// workflow to mode selection.
type AudioService interface {
	Accept(ctx context.Context, userID string, data []byte, mimeType string, declaredSize int64) (*models.AudioSession, error)
	Current(ctx context.Context, userID string) (*models.AudioSession, error)
}

type audioService struct {
	store    session.Store
	machine  *workflow.Machine
	maxBytes int64
	log      *logrus.Logger
}

func NewAudioService(store session.Store, machine *workflow.Machine, maxBytes int64, log *logrus.Logger) AudioService {
	if log == nil {
		log = logrus.New()
	}
	return &audioService{store: store, machine: machine, maxBytes: maxBytes, log: log}
}

func (s *audioService) Accept(ctx context.Context, userID string, data []byte, mimeType string, declaredSize int64) (*models.AudioSession, error) {
	const op = "AudioService.Accept"

	// Both ceilings are checked before any retention or downstream call:
	// the declared size up front, the actual payload inside Put.
	if s.maxBytes > 0 && declaredSize > s.maxBytes {
		return nil, utils.E(utils.CodeSizeExceeded, op, "audio exceeds the maximum accepted size", nil)
	}

	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if mime == "" {
		mime = "audio/mpeg"
	}
	if !strings.HasPrefix(mime, "audio/") && mime != "application/octet-stream" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "payload is not an audio file", nil)
	}

	sess, err := s.store.Put(ctx, userID, data, mime, declaredSize)
	if err != nil {
		return nil, err
	}
	s.machine.NotifyUpload(userID)

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"size":    sess.Size,
		"mime":    sess.MimeType,
		"version": sess.Version,
	}).Info("audio session stored")
	return sess, nil
}

func (s *audioService) Current(ctx context.Context, userID string) (*models.AudioSession, error) {
	return s.store.Get(ctx, userID)
}
