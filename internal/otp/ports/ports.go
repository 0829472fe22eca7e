// Package ports defines shared interfaces for the otp module.
// Interfaces are placed here when consumed by multiple services to avoid duplication.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"otpguard/internal/otp/models"
)

// RecordStore manages passcode records keyed by (identity, purpose).
//
// Error Contract:
// - Return errors wrapping sentinel.ErrNotFound when no live record exists
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
//
// All mutating operations must be linearizable per (identity, purpose) pair:
// concurrent callers racing on the same pair observe a single total order.
type RecordStore interface {
	// Put atomically replaces any existing record for the pair. Concurrent
	// verification calls never observe two simultaneously-active records.
	Put(ctx context.Context, record *models.Record) error

	// Get returns the live record for the pair. Records past their expiry are
	// logically absent regardless of physical storage: Get hides them.
	Get(ctx context.Context, identity string, purpose models.Purpose, now time.Time) (*models.Record, error)

	// IncrementAttempt atomically bumps the attempt counter and returns the
	// post-increment value. Safe under concurrent verification calls: exactly
	// one of N racers observes each counter value.
	IncrementAttempt(ctx context.Context, identity string, purpose models.Purpose) (int, error)

	// MarkConsumed is an atomic compare-and-set on the consumed flag. Returns
	// false when the record is absent or already consumed; returns true for
	// exactly one caller. Verification success must gate on this.
	MarkConsumed(ctx context.Context, identity string, purpose models.Purpose) (bool, error)

	// Delete removes the record for the pair. Deleting an absent record is
	// not an error. Used to invalidate codes whose delivery failed.
	Delete(ctx context.Context, identity string, purpose models.Purpose) error

	// DeleteExpired reclaims physically stored records past their expiry as
	// of now. Cosmetic: correctness never depends on it since Get hides
	// expired records.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// CooldownTracker throttles issuance per (identity, purpose).
type CooldownTracker interface {
	// CheckAndArm atomically checks the cooldown and, when allowed, arms a new
	// window before returning, so a concurrent call in the same instant is
	// correctly denied. Check-then-set is a single step, never two.
	CheckAndArm(ctx context.Context, identity string, purpose models.Purpose, interval time.Duration, now time.Time) (models.CooldownDecision, error)

	// Release disarms the cooldown for the pair. Called when issuance rolls
	// back after a delivery failure so the user can retry immediately.
	Release(ctx context.Context, identity string, purpose models.Purpose) error
}

// Notifier is the external delivery collaborator. Failure is terminal for the
// issuance attempt that triggered it.
type Notifier interface {
	Send(ctx context.Context, destination, subject, body string) error
}
