package repository

import (
	"context"
	"fmt"
	"time"

	"busticket/internal/config"
	"busticket/internal/worker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSeatLocker is a cross-process lock built on SET NX PX.
type RedisSeatLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  worker.RetryPolicy
	prefix string
}

func NewRedisSeatLocker(client *redis.Client, ttl time.Duration) *RedisSeatLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisSeatLocker{
		client: client,
		ttl:    ttl,
		retry: worker.RetryPolicy{
			InitialDelay:  10 * time.Millisecond,
			MaxDelay:      200 * time.Millisecond,
			BackoffFactor: 2,
		},
		prefix: "busticket:lock:",
	}
}

// Lock polls until the key is free or ctx ends. Redis errors are returned
// immediately so a failover wrapper can react.
func (l *RedisSeatLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	redisKey := l.prefix + key
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire seat lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
			}, nil
		}
		if err := l.retry.Wait(ctx, attempt); err != nil {
			return nil, err
		}
	}
}
