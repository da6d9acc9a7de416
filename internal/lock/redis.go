package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix            = "payment-lock:"
	defaultRetryInterval = 25 * time.Millisecond
	unlockTimeout        = 2 * time.Second
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a lease based lock shared by every instance using the same
// Redis. A lease expires after ttl so a crashed holder cannot block a record
// forever; ttl must exceed the longest gateway call.
type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: defaultRetryInterval,
		logger:        logger,
	}
}

func lockKey(key string) string {
	return keyPrefix + key
}

// Lock acquires the lease for key, polling until it is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	rkey := lockKey(key)

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		n, err := releaseScript.Run(unlockCtx, l.client, []string{rkey}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Error("failed to release record lock", zap.String("key", key), zap.Error(err))
			return
		}
		if n == 0 {
			l.logger.Warn("record lock lease expired before release", zap.String("key", key))
		}
	}, nil
}
