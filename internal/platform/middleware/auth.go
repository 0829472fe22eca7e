package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"otpguard/pkg/requestcontext"
)

// TokenVerifier resolves a bearer credential to a subject identity.
type TokenVerifier interface {
	Resolve(tokenString string) (subject string, err error)
}

// GetSubject retrieves the authenticated subject from the context.
func GetSubject(ctx context.Context) string {
	return requestcontext.Subject(ctx)
}

// RequireAuth rejects requests without a valid bearer credential before the
// handler runs. On success the resolved subject is placed in the context.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			subject, err := verifier.Resolve(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithSubject(ctx, subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
