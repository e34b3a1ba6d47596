package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/utils"
)

// Store holds at most one audio payload per user. Put replaces any prior
// session wholesale and rotates the version token; Get returns a snapshot
// that stays valid even if the session is replaced afterwards.
type Store interface {
	Put(ctx context.Context, userID string, data []byte, mimeType string, size int64) (*models.AudioSession, error)
	Get(ctx context.Context, userID string) (*models.AudioSession, error)
	Clear(ctx context.Context, userID string) error
}

const defaultMaxAudioBytes = 20 << 20 // 20 MB transport ceiling

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*models.AudioSession
}

// MemoryStore is a sharded in-process store. Entries for different users
// live on independent shards so one user's upload never blocks another's.
type MemoryStore struct {
	maxBytes int64
	shards   [shardCount]*shard
}

func NewMemoryStore(maxBytes int64) *MemoryStore {
	if maxBytes <= 0 {
		maxBytes = defaultMaxAudioBytes
	}
	s := &MemoryStore{maxBytes: maxBytes}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*models.AudioSession)}
	}
	return s
}

func (s *MemoryStore) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) MaxBytes() int64 { return s.maxBytes }

func (s *MemoryStore) Put(ctx context.Context, userID string, data []byte, mimeType string, size int64) (*models.AudioSession, error) {
	const op = "SessionStore.Put"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	// The size check precedes any retention of bytes.
	if size > s.maxBytes || int64(len(data)) > s.maxBytes {
		return nil, utils.E(utils.CodeSizeExceeded, op, "audio exceeds the maximum accepted size", nil)
	}
	if len(data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty audio payload", nil)
	}

	sess := &models.AudioSession{
		UserID:     userID,
		Data:       data,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		Version:    uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
	}

	sh := s.shardFor(userID)
	sh.mu.Lock()
	sh.sessions[userID] = sess
	sh.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.AudioSession, error) {
	const op = "SessionStore.Get"

	sh := s.shardFor(userID)
	sh.mu.RLock()
	sess, ok := sh.sessions[userID]
	sh.mu.RUnlock()
	if !ok {
		return nil, utils.E(utils.CodeSessionExpired, op, "no audio session for this user", nil)
	}
	return sess, nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	delete(sh.sessions, userID)
	sh.mu.Unlock()
	return nil
}
