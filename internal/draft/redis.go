package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "draft:"

// RedisStore keeps checkpoints as JSON strings with an expiry, so drafts
// survive process restarts and are shared across instances.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, cp Checkpoint) error {
	cp.UpdatedAt = s.now()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (Checkpoint, bool, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	// Reading refreshes the idle timer.
	s.client.Expire(ctx, s.key(sessionID), s.ttl)
	return cp, true, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
