package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const throttleKeyPrefix = "athr"

var errThrottleBackend = errors.New("request throttle backend unavailable")

// requestLimiter applies a fixed window cap to self-service request
// endpoints (password reset, verification mail) so a scripted caller
// cannot flood a mailbox or enumerate accounts.
type requestLimiter struct {
	redis  *redis.Client
	config ThrottleConfig
}

func newRequestLimiter(redisClient *redis.Client, cfg ThrottleConfig) *requestLimiter {
	return &requestLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check enforces the window for one operation and identifier pair. The
// operation name keeps reset and verification budgets separate.
func (l *requestLimiter) Check(ctx context.Context, operation, identifier string) error {
	if !l.config.Enabled {
		return nil
	}

	key := throttleKeyPrefix + ":" + operation + ":" + identifier

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errThrottleBackend, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errThrottleBackend, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrRequestRateLimited
	}

	return nil
}
