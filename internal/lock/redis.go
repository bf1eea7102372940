package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultTTL   = 2 * time.Minute
	retryBackoff = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose lease expired cannot release its successor.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares locks between processes through Redis leases.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedisLocker connects to redisURL. Leases expire after ttl so a crashed
// holder cannot block a key forever.
func NewRedisLocker(redisURL string, ttl time.Duration, log logrus.FieldLogger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, ttl, log), nil
}

func NewRedisLockerWithClient(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisLocker{client: client, prefix: "casebook:lock:", ttl: ttl, log: log}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.log.WithError(err).WithField("key", key).Warn("release lock")
			}
		})
	}, nil
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Client exposes the connection so other Redis-backed components can share it.
func (l *RedisLocker) Client() *redis.Client {
	return l.client
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
