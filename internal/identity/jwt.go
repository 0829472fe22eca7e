package identity

import (
	"errors"
	"time"

	dErrors "otpguard/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the JWT claims for service access tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 bearer tokens and resolves their subject. It
// satisfies the transport layer's TokenVerifier contract and also mints
// tokens for operator tooling and tests.
type JWTVerifier struct {
	signingKey []byte
	issuer     string
}

func NewJWTVerifier(signingKey string, issuer string) *JWTVerifier {
	return &JWTVerifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateToken mints a signed token for the given subject.
func (v *JWTVerifier) GenerateToken(subject string, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
			ID:        uuid.NewString(),
		},
	})

	return newToken.SignedString(v.signingKey)
}

// Resolve validates the token and returns its subject.
func (v *JWTVerifier) Resolve(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims.Subject, nil
}
