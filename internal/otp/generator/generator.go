package generator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// otpIDBytes sizes the opaque issuance identifier: 16 bytes = 128 bits of
// entropy, hex-encoded. The identifier is safe to expose in API responses and
// logs; it is never accepted as a verification credential.
const otpIDBytes = 16

// Generator produces fixed-length numeric passcodes from a cryptographically
// secure source. Pure generation, no side effects.
type Generator struct {
	codeLength int
	max        *big.Int
}

// New constructs a Generator for codes of the given decimal length.
func New(codeLength int) *Generator {
	max := big.NewInt(10)
	max.Exp(max, big.NewInt(int64(codeLength)), nil)
	return &Generator{codeLength: codeLength, max: max}
}

// Generate returns a zero-padded numeric code drawn uniformly over
// [0, 10^codeLength) plus an opaque issuance identifier. Entropy-source
// failure is unrecoverable for the request.
func (g *Generator) Generate() (code string, otpID string, err error) {
	n, err := rand.Int(rand.Reader, g.max)
	if err != nil {
		return "", "", fmt.Errorf("entropy source exhausted: %w", err)
	}

	idBytes := make([]byte, otpIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", fmt.Errorf("entropy source exhausted: %w", err)
	}

	code = fmt.Sprintf("%0*d", g.codeLength, n)
	return code, hex.EncodeToString(idBytes), nil
}

// CodeLength reports the configured code length, used for input validation at
// the verification boundary.
func (g *Generator) CodeLength() int {
	return g.codeLength
}
