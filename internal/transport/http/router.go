package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	otphandler "otpguard/internal/otp/handler"
	"otpguard/internal/platform/middleware"
	ratelimitmw "otpguard/internal/ratelimit/middleware"
	"otpguard/pkg/platform/httputil"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Deps collects everything the router mounts.
type Deps struct {
	OTP      *otphandler.Handler
	Gateway  *ratelimitmw.Middleware
	Verifier middleware.TokenVerifier
	Logger   *slog.Logger

	// Health checks by dependency name, each nil-safe to omit.
	Health map[string]HealthChecker
}

// NewRouter assembles the full HTTP surface. Request metadata middleware runs
// first so every later stage, the rate limit gateway included, sees the
// client IP and request ID. Authentication runs before the per-subject
// limiter because that limiter keys on the resolved subject.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Group(func(public chi.Router) {
		public.Use(deps.Gateway.Public)
		public.Use(middleware.ContentTypeJSON)
		deps.OTP.RegisterPublic(public)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth(deps.Verifier, deps.Logger))
		protected.Use(deps.Gateway.Authenticated)
		deps.OTP.RegisterProtected(protected)
	})

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				deps[name] = "unreachable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		httputil.WriteJSON(w, status, body)
	}
}
