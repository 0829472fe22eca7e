package bucket

import (
	"context"
	"sync"
	"time"

	"otpguard/internal/ratelimit/models"
)

// InMemoryBucketStore implements BucketStore with fixed windows held in
// process memory. Single instance only; distributed deployments use
// RedisBucketStore.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*fixedWindow
}

// fixedWindow counts admissions since the window opened. The window opens at
// the first admitted request and is replaced outright once it elapses, so a
// burst straddling the boundary can see up to 2x the limit across the two
// windows. That trade is accepted for O(1) state per key.
type fixedWindow struct {
	start time.Time
	count int
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{
		buckets: make(map[string]*fixedWindow),
	}
}

// Take admits and counts the request, or denies it without counting.
func (s *InMemoryBucketStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fw := s.buckets[key]
	if fw == nil || !now.Before(fw.start.Add(window)) {
		fw = &fixedWindow{start: now}
		s.buckets[key] = fw
	}

	resetAt := fw.start.Add(window)

	if fw.count >= limit {
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt, now),
		}, nil
	}

	fw.count++
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - fw.count,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the counter for a key.
func (s *InMemoryBucketStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// retryAfterSeconds rounds the wait up so clients never retry early.
func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
