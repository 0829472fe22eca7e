package models

import (
	"time"
)

// Tier categorizes callers for differentiated rate limiting.
type Tier string

const (
	// TierPublic covers unauthenticated traffic, keyed by requesting IP.
	TierPublic Tier = "public"
	// TierAuthenticated covers token-bearing traffic, keyed by subject.
	TierAuthenticated Tier = "authenticated"
)

// IsValid checks if the tier is one of the supported enum values.
func (t Tier) IsValid() bool {
	return t == TierPublic || t == TierAuthenticated
}

// String returns the string representation.
func (t Tier) String() string {
	return string(t)
}

// Result represents the outcome of a rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// ExceededResponse is the body returned to throttled callers. It is
// deliberately generic and never names the caller or the key that tripped.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
