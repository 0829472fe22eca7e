package email

import (
	"strings"
	"unicode"

	dErrors "otpguard/pkg/domain-errors"
)

// Normalize lowercases and trims an email address so (identity, purpose) keys
// are stable regardless of how the caller typed the address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate applies the minimal structural checks we rely on before using an
// address as a store key or a delivery destination. Full RFC 5322 validation
// is deliberately out of scope; the delivery collaborator owns deliverability.
func Validate(email string) error {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return dErrors.New(dErrors.CodeInvalidInput, "malformed email address")
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return dErrors.New(dErrors.CodeInvalidInput, "malformed email address")
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return dErrors.New(dErrors.CodeInvalidInput, "malformed email address")
	}
	return nil
}

// DeriveNameFromEmail guesses a (first, last) display name from the local part
// of an address. Used to personalize passcode delivery messages when no
// profile name is available.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
