package email

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "otpguard/pkg/domain-errors"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice@example.com", Normalize("  Alice@Example.COM "))
	assert.Equal(t, "bob@example.com", Normalize("bob@example.com"))
}

func TestValidate(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"a.b+tag@sub.example.co.uk",
	}
	for _, addr := range valid {
		assert.NoError(t, Validate(addr), addr)
	}

	invalid := []string{
		"",
		"no-at-sign",
		"@example.com",
		"alice@",
		"alice@nodot",
		"alice@.example.com",
		"alice@example.com.",
		"alice smith@example.com",
	}
	for _, addr := range invalid {
		err := Validate(addr)
		assert.Error(t, err, addr)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput), addr)
	}
}

func TestDeriveNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		first string
		last  string
	}{
		{"jane.doe@example.com", "Jane", "Doe"},
		{"jane_van-der.berg@example.com", "Jane", "Berg"},
		{"solo@example.com", "Solo", "User"},
		{"...@example.com", "User", "User"},
	}

	for _, tt := range tests {
		first, last := DeriveNameFromEmail(tt.email)
		assert.Equal(t, tt.first, first, tt.email)
		assert.Equal(t, tt.last, last, tt.email)
	}
}
