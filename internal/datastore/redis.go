package datastore

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/flowkernel/common/logger"
	"github.com/lyzr/flowkernel/internal/envelope"
)

// RedisStore is the production DataStore backend, narrowed to the
// queue/cache operations the kernel actually needs and namespaced under
// ds:queue:/ds:cache:.
type RedisStore struct {
	redis *goredis.Client
	log   *logger.Logger
}

// NewRedisStore wraps an already-configured *redis.Client.
func NewRedisStore(client *goredis.Client, log *logger.Logger) *RedisStore {
	return &RedisStore{redis: client, log: log}
}

// Push implements DataStore.
func (s *RedisStore) Push(ctx context.Context, queueName string, env *envelope.Envelope) error {
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := s.redis.LPush(ctx, queueKey(queueName), raw).Err(); err != nil {
		s.log.Error("datastore: redis push failed", "queue", queueName, "error", err)
		return err
	}
	s.log.Debug("datastore: pushed", "queue", queueName)
	return nil
}

// Pop implements DataStore. A nil timeout blocks indefinitely; *timeout
// == 0 is a non-blocking RPOP; otherwise BRPOP bounds the wait.
func (s *RedisStore) Pop(ctx context.Context, queueName string, timeout *time.Duration) (*envelope.Envelope, error) {
	key := queueKey(queueName)

	if timeout != nil && *timeout == 0 {
		raw, err := s.redis.RPop(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return envelope.Unmarshal([]byte(raw))
	}

	wait := time.Duration(0) // 0 means "block forever" to go-redis's BRPop.
	if timeout != nil {
		wait = *timeout
	}
	result, err := s.redis.BRPop(ctx, wait, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	return envelope.Unmarshal([]byte(result[1]))
}

// QueueLength implements DataStore.
func (s *RedisStore) QueueLength(ctx context.Context, queueName string) (int64, error) {
	return s.redis.LLen(ctx, queueKey(queueName)).Result()
}

// CacheSet implements DataStore.
func (s *RedisStore) CacheSet(ctx context.Context, key string, value []byte, ttl *time.Duration) error {
	var expiry time.Duration
	if ttl != nil {
		expiry = *ttl
	}
	return s.redis.Set(ctx, cacheKey(key), value, expiry).Err()
}

// CacheGet implements DataStore.
func (s *RedisStore) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.redis.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// CacheDel implements DataStore.
func (s *RedisStore) CacheDel(ctx context.Context, key string) error {
	return s.redis.Del(ctx, cacheKey(key)).Err()
}

// CacheExists implements DataStore.
func (s *RedisStore) CacheExists(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Exists(ctx, cacheKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close implements DataStore.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
