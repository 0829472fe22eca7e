package ports

import (
	"context"
	"time"

	"otpguard/internal/ratelimit/models"
)

// BucketStore counts requests per key inside fixed windows.
//
// Take is the only mutating call and must be atomic per key: it admits the
// request and increments the counter, or denies it without incrementing, so
// the stored count never exceeds the limit even under concurrency. The window
// starts at the first admitted request after a rollover and resets wholesale
// when it elapses.
type BucketStore interface {
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*models.Result, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}
