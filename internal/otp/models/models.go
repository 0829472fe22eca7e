package models

import (
	"time"

	dErrors "otpguard/pkg/domain-errors"
)

// Purpose is the declared reason for a passcode. Cooldown and attempt state
// are scoped independently per (identity, purpose) pair.
type Purpose string

const (
	PurposeLogin               Purpose = "login"
	PurposePasswordReset       Purpose = "password_reset"
	PurposeAccountVerification Purpose = "account_verification"
	PurposeTrialAccess         Purpose = "trial_access"
)

// ParsePurpose creates a Purpose from a string, validating it.
func ParsePurpose(s string) (Purpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "purpose cannot be empty")
	}
	p := Purpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purpose")
	}
	return p, nil
}

// IsValid checks if the purpose is one of the supported enum values.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeLogin, PurposePasswordReset, PurposeAccountVerification, PurposeTrialAccess:
		return true
	}
	return false
}

// String returns the string representation.
func (p Purpose) String() string {
	return string(p)
}

// RecordState describes where a record sits in its lifecycle:
// NONE -> ACTIVE -> {CONSUMED | EXPIRED | LOCKED}. Terminal states are
// absorbing; a fresh issuance supersedes any terminal record for the pair.
type RecordState string

const (
	StateActive   RecordState = "active"
	StateConsumed RecordState = "consumed"
	StateExpired  RecordState = "expired"
	StateLocked   RecordState = "locked"
)

// Record is one passcode issuance for an (identity, purpose) pair. At most
// one active record exists per pair; Put on the store atomically supersedes
// any prior one.
type Record struct {
	Identity     string    `json:"identity"` // normalized lowercase email
	Purpose      Purpose   `json:"purpose"`
	CodeHash     string    `json:"code_hash"` // bcrypt hash, never the plaintext code
	OTPID        string    `json:"otp_id"`    // opaque client correlation token, never a credential
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AttemptsUsed int       `json:"attempts_used"`
	MaxAttempts  int       `json:"max_attempts"`
	Consumed     bool      `json:"consumed"`
	RequestingIP string    `json:"requesting_ip"` // retained for abuse analysis
}

// NewRecord creates a Record with domain invariant validation.
func NewRecord(identity string, purpose Purpose, codeHash, otpID string, issuedAt time.Time, ttl time.Duration, maxAttempts int, requestingIP string) (*Record, error) {
	if identity == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid purpose")
	}
	if codeHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "code hash cannot be empty")
	}
	if otpID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "otp id cannot be empty")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ttl must be positive")
	}
	if maxAttempts <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "max attempts must be positive")
	}

	return &Record{
		Identity:     identity,
		Purpose:      purpose,
		CodeHash:     codeHash,
		OTPID:        otpID,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(ttl),
		AttemptsUsed: 0,
		MaxAttempts:  maxAttempts,
		Consumed:     false,
		RequestingIP: requestingIP,
	}, nil
}

// IsExpired checks whether the record has passed its expiry as of now.
func (r *Record) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IsLocked checks whether verification attempts are exhausted.
func (r *Record) IsLocked() bool {
	return r.AttemptsUsed >= r.MaxAttempts
}

// State derives the lifecycle state as of now. Expiry dominates: a consumed
// or locked record past its TTL reads as expired either way.
func (r *Record) State(now time.Time) RecordState {
	switch {
	case r.IsExpired(now):
		return StateExpired
	case r.Consumed:
		return StateConsumed
	case r.IsLocked():
		return StateLocked
	default:
		return StateActive
	}
}

// AttemptsRemaining never reports below zero even if concurrent racers pushed
// the counter past the ceiling.
func (r *Record) AttemptsRemaining() int {
	remaining := r.MaxAttempts - r.AttemptsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ErrorKind is the machine-readable verification failure classification
// surfaced in API responses.
type ErrorKind string

const (
	ErrorInvalidInput   ErrorKind = "InvalidInput"
	ErrorNotFound       ErrorKind = "NotFound"
	ErrorLocked         ErrorKind = "Locked"
	ErrorInvalidCode    ErrorKind = "InvalidCode"
	ErrorAlreadyUsed    ErrorKind = "AlreadyUsed"
	ErrorCooldownActive ErrorKind = "CooldownActive"
	ErrorDeliveryFailed ErrorKind = "DeliveryFailed"
)

// IssueResult is the outcome of a passcode issuance request.
type IssueResult struct {
	Success                  bool      `json:"success"`
	OTPID                    string    `json:"otp_id,omitempty"`
	Message                  string    `json:"message"`
	Error                    ErrorKind `json:"error,omitempty"`
	CooldownRemainingSeconds *int      `json:"cooldown_remaining_seconds,omitempty"`
}

// VerifyResult is the outcome of a passcode verification attempt.
type VerifyResult struct {
	Success           bool      `json:"success"`
	Error             ErrorKind `json:"error,omitempty"`
	AttemptsRemaining *int      `json:"attempts_remaining,omitempty"`
}

// CooldownDecision is the atomic check-and-arm outcome for a pair.
type CooldownDecision struct {
	Allowed          bool
	RemainingSeconds int // rounded up for display; 0 when allowed
}
