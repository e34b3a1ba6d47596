package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omnihear/omnihear/internal/models"
)

// ResultCache memoizes completed dispatches in Redis. The key binds the
// session version token to the full parameter set, so a repeat dispatch of
// the same clip with identical parameters skips every provider call, while
// a re-upload (new token) can never collide with the old clip's results.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewResultCache(rdb *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{rdb: rdb, ttl: ttl}
}

func Key(sessionVersion, mode, tier, source, target string) string {
	return "result:" + strings.Join([]string{sessionVersion, mode, tier, source, target}, "|")
}

func (c *ResultCache) Get(ctx context.Context, key string) (*models.ProcessingResult, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out models.ProcessingResult
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		// data corrupt: treat as miss by deleting
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false, nil
	}
	return &out, true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, res *models.ProcessingResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
