package cooldown

import (
	"context"
	"sync"
	"time"

	"otpguard/internal/otp/models"
)

// InMemoryCooldownTracker tracks per-pair issuance cooldowns in memory.
// CheckAndArm holds the write lock across check and arm, making the
// check-then-set a single atomic step.
type InMemoryCooldownTracker struct {
	mu       sync.Mutex
	deadline map[string]time.Time // pair key -> cooldownUntil
}

// NewInMemory constructs an empty in-memory cooldown tracker.
func NewInMemory() *InMemoryCooldownTracker {
	return &InMemoryCooldownTracker{
		deadline: make(map[string]time.Time),
	}
}

func pairKey(identity string, purpose models.Purpose) string {
	return identity + "|" + string(purpose)
}

func (t *InMemoryCooldownTracker) CheckAndArm(_ context.Context, identity string, purpose models.Purpose, interval time.Duration, now time.Time) (models.CooldownDecision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pairKey(identity, purpose)
	if until, ok := t.deadline[key]; ok && now.Before(until) {
		return models.CooldownDecision{
			Allowed:          false,
			RemainingSeconds: remainingSeconds(until.Sub(now)),
		}, nil
	}

	t.deadline[key] = now.Add(interval)
	return models.CooldownDecision{Allowed: true}, nil
}

func (t *InMemoryCooldownTracker) Release(_ context.Context, identity string, purpose models.Purpose) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.deadline, pairKey(identity, purpose))
	return nil
}

// remainingSeconds rounds up so callers never display "retry in 0 seconds"
// while the cooldown is still armed.
func remainingSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
