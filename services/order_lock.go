package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OrderLocker serialises work on a single order across consumers.
type OrderLocker interface {
	// TryLock acquires the lock for orderID without waiting. When acquired is
	// false the lock is held elsewhere and release is nil.
	TryLock(ctx context.Context, orderID int64) (release func(), acquired bool, err error)
}

const orderLockPrefix = "payments:order-lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisOrderLocker holds per-order locks as expiring Redis keys so that every
// service replica sees the same lock.
type RedisOrderLocker struct {
	client redisLockClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisOrderLocker(client redisLockClient, ttl time.Duration, logger *zap.Logger) *RedisOrderLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisOrderLocker{client: client, ttl: ttl, logger: logger}
}

func (l *RedisOrderLocker) TryLock(ctx context.Context, orderID int64) (func(), bool, error) {
	key := orderLockPrefix + strconv.FormatInt(orderID, 10)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire order lock %d: %w", orderID, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The message context may already be cancelled when the lock is released.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release order lock, it expires after its TTL",
				zap.Int64("order_id", orderID),
				zap.Duration("ttl", l.ttl),
				zap.Error(err),
			)
		}
	}
	return release, true, nil
}

// LocalOrderLocker holds per-order locks in process memory. It is used when no
// Redis is configured and only protects consumers of the same process.
type LocalOrderLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func NewLocalOrderLocker() *LocalOrderLocker {
	return &LocalOrderLocker{held: make(map[int64]struct{})}
}

func (l *LocalOrderLocker) TryLock(_ context.Context, orderID int64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[orderID]; busy {
		return nil, false, nil
	}
	l.held[orderID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, orderID)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}
