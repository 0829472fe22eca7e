package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "otpguard/pkg/domain-errors"
)

func TestParsePurpose(t *testing.T) {
	for _, purpose := range []string{"login", "password_reset", "account_verification", "trial_access"} {
		p, err := ParsePurpose(purpose)
		require.NoError(t, err, purpose)
		assert.Equal(t, purpose, p.String())
	}

	for _, bad := range []string{"", "LOGIN", "signup", "login "} {
		_, err := ParsePurpose(bad)
		require.Error(t, err, bad)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput), bad)
	}
}

func TestNewRecordValidation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	record, err := NewRecord("alice@example.com", PurposeLogin, "hash", "otp-1", now, 10*time.Minute, 5, "")
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), record.ExpiresAt)
	assert.Equal(t, 0, record.AttemptsUsed)

	cases := []struct {
		name string
		fn   func() (*Record, error)
	}{
		{"empty identity", func() (*Record, error) {
			return NewRecord("", PurposeLogin, "hash", "otp-1", now, time.Minute, 5, "")
		}},
		{"invalid purpose", func() (*Record, error) {
			return NewRecord("alice@example.com", Purpose("bogus"), "hash", "otp-1", now, time.Minute, 5, "")
		}},
		{"empty hash", func() (*Record, error) {
			return NewRecord("alice@example.com", PurposeLogin, "", "otp-1", now, time.Minute, 5, "")
		}},
		{"non-positive ttl", func() (*Record, error) {
			return NewRecord("alice@example.com", PurposeLogin, "hash", "otp-1", now, 0, 5, "")
		}},
		{"non-positive attempts", func() (*Record, error) {
			return NewRecord("alice@example.com", PurposeLogin, "hash", "otp-1", now, time.Minute, 0, "")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.fn()
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestRecordState(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	record, err := NewRecord("alice@example.com", PurposeLogin, "hash", "otp-1", now, 10*time.Minute, 5, "")
	require.NoError(t, err)

	assert.Equal(t, StateActive, record.State(now))

	t.Run("consumed", func(t *testing.T) {
		r := *record
		r.Consumed = true
		assert.Equal(t, StateConsumed, r.State(now))
	})

	t.Run("locked", func(t *testing.T) {
		r := *record
		r.AttemptsUsed = 5
		assert.Equal(t, StateLocked, r.State(now))
		assert.True(t, r.IsLocked())
	})

	t.Run("expiry dominates other states", func(t *testing.T) {
		r := *record
		r.Consumed = true
		r.AttemptsUsed = 9
		assert.Equal(t, StateExpired, r.State(now.Add(11*time.Minute)))
	})

	t.Run("boundary instant is not yet expired", func(t *testing.T) {
		assert.False(t, record.IsExpired(now.Add(10*time.Minute)))
		assert.True(t, record.IsExpired(now.Add(10*time.Minute+time.Nanosecond)))
	})
}

func TestAttemptsRemaining(t *testing.T) {
	record := &Record{MaxAttempts: 5, AttemptsUsed: 3}
	assert.Equal(t, 2, record.AttemptsRemaining())

	record.AttemptsUsed = 7
	assert.Equal(t, 0, record.AttemptsRemaining(), "over-count under concurrency clamps to zero")
}
