package queue

import (
	"context"
	"time"

	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/pkg/errors"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog"
)

// Locker serializes provisioning operations across API replicas.
type Locker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewLocker(redisClient *RedisClient) *Locker {
	return &Locker{
		client: redislock.New(redisClient.Client()),
		prefix: redisClient.cfg.Redis.LockPrefix,
		ttl:    redisClient.cfg.Redis.LockTTL,
		log:    logger.Component("locker"),
	}
}

// Acquire obtains the lock or fails with ErrOperationInFlight when another
// holder has it. The returned func releases the lock.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + key
	lock, err := l.client.Obtain(ctx, lockKey, l.ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, errors.ErrOperationInFlight
	} else if err != nil {
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && err != redislock.ErrLockNotHeld {
			l.log.Warn().Err(err).Str("key", lockKey).Msg("Failed to release lock")
		}
	}, nil
}
