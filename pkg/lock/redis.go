package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with a per-key Redis SET NX lock so critical
// sections stay exclusive across API replicas.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  client,
		ttl:     ttl,
		retries: 10,
		backoff: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := fmt.Sprintf("lock:%s", key)
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	if !acquired {
		return ErrNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), redisKey, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// Only the holder may delete the key, so release compares the token first.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// NewRedisClient dials Redis and verifies connectivity.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
