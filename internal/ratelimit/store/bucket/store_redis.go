package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "otpguard/internal/platform/redis"
	"otpguard/internal/ratelimit/models"
	"otpguard/pkg/platform/sentinel"
)

// takeScript checks the counter against the limit before incrementing, so a
// denied request leaves the stored count untouched. The key's TTL doubles as
// the window boundary: it is armed on the first admission and Redis expiry
// performs the rollover.
var takeScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if count >= limit then
  return {0, count, redis.call('PTTL', KEYS[1])}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]))
end
return {1, count, redis.call('PTTL', KEYS[1])}
`)

// RedisBucketStore implements BucketStore on Redis so limits hold across
// replicas.
type RedisBucketStore struct {
	client *platformredis.Client
}

func NewRedisBucketStore(client *platformredis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

func (s *RedisBucketStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*models.Result, error) {
	raw, err := takeScript.Run(ctx, s.client, []string{bucketKey(key)},
		limit, window.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: rate limit take: %w", sentinel.ErrUnavailable, err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return nil, fmt.Errorf("%w: rate limit take: unexpected reply %v", sentinel.ErrUnavailable, raw)
	}
	allowed := reply[0].(int64) == 1
	count := int(reply[1].(int64))
	pttl := time.Duration(reply[2].(int64)) * time.Millisecond

	resetAt := now.Add(window)
	if pttl > 0 {
		resetAt = now.Add(pttl)
	}

	result := &models.Result{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: resetAt,
	}
	if allowed {
		result.Remaining = limit - count
		if result.Remaining < 0 {
			result.Remaining = 0
		}
	} else {
		result.RetryAfter = retryAfterSeconds(resetAt, now)
	}
	return result, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, bucketKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: rate limit reset: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func bucketKey(key string) string {
	return "rl:" + key
}
