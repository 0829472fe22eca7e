package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"otpguard/internal/otp/models"
	"otpguard/pkg/platform/sentinel"
)

const cooldownKeyPrefix = "otp:cd:"

// RedisCooldownTracker arms cooldowns with SET NX PX: a single atomic
// command decides check and arm together, so concurrent issuance calls for
// the same pair cannot both pass. Redis expiry disarms the window.
type RedisCooldownTracker struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed cooldown tracker.
func NewRedis(client *redis.Client) *RedisCooldownTracker {
	return &RedisCooldownTracker{client: client}
}

func (t *RedisCooldownTracker) key(identity string, purpose models.Purpose) string {
	return cooldownKeyPrefix + identity + ":" + string(purpose)
}

func (t *RedisCooldownTracker) CheckAndArm(ctx context.Context, identity string, purpose models.Purpose, interval time.Duration, _ time.Time) (models.CooldownDecision, error) {
	key := t.key(identity, purpose)

	armed, err := t.client.SetNX(ctx, key, "1", interval).Result()
	if err != nil {
		return models.CooldownDecision{}, fmt.Errorf("arm cooldown: %w: %w", sentinel.ErrUnavailable, err)
	}
	if armed {
		return models.CooldownDecision{Allowed: true}, nil
	}

	ttl, err := t.client.PTTL(ctx, key).Result()
	if err != nil {
		return models.CooldownDecision{}, fmt.Errorf("read cooldown ttl: %w: %w", sentinel.ErrUnavailable, err)
	}
	if ttl <= 0 {
		// Key expired between SETNX and PTTL; report the minimum wait.
		ttl = time.Second
	}
	return models.CooldownDecision{
		Allowed:          false,
		RemainingSeconds: remainingSeconds(ttl),
	}, nil
}

func (t *RedisCooldownTracker) Release(ctx context.Context, identity string, purpose models.Purpose) error {
	if err := t.client.Del(ctx, t.key(identity, purpose)).Err(); err != nil {
		return fmt.Errorf("release cooldown: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
