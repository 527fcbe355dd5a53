package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const retryKeyPrefix = "arl"

var errRetryBackend = errors.New("retry tracker backend unavailable")

// retryTracker counts consecutive failed login attempts per user. Crossing
// the lockout threshold resets the counter so an unlocked account starts
// from a clean slate rather than locking again on its first slip.
type retryTracker struct {
	redis  *redis.Client
	config LockoutConfig
}

func newRetryTracker(redisClient *redis.Client, cfg LockoutConfig) *retryTracker {
	return &retryTracker{
		redis:  redisClient,
		config: cfg,
	}
}

func (t *retryTracker) key(username string) string {
	return retryKeyPrefix + ":" + username
}

// Increment records one failed attempt and reports whether the lockout
// threshold was reached. The caller is responsible for actually locking
// the account.
func (t *retryTracker) Increment(ctx context.Context, username string) (int, bool, error) {
	key := t.key(username)

	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", errRetryBackend, err)
	}

	if count == 1 && t.config.CounterTTL > 0 {
		if err := t.redis.Expire(ctx, key, t.config.CounterTTL).Err(); err != nil {
			return 0, false, fmt.Errorf("%w: %v", errRetryBackend, err)
		}
	}

	if count >= int64(t.config.Threshold) {
		if err := t.redis.Set(ctx, key, 0, t.config.CounterTTL).Err(); err != nil {
			return int(count), true, fmt.Errorf("%w: %v", errRetryBackend, err)
		}
		return int(count), true, nil
	}

	return int(count), false, nil
}

// Reset zeroes the counter. Called on every successful credential check,
// before the MFA step, so a later wrong code starts its own budget.
func (t *retryTracker) Reset(ctx context.Context, username string) error {
	if err := t.redis.Set(ctx, t.key(username), 0, t.config.CounterTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRetryBackend, err)
	}
	return nil
}

// Count returns the current consecutive-failure count.
func (t *retryTracker) Count(ctx context.Context, username string) (int, error) {
	count, err := t.redis.Get(ctx, t.key(username)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", errRetryBackend, err)
	}
	return count, nil
}
