package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"otpguard/internal/audit"
	"otpguard/internal/platform/metrics"
	platformmw "otpguard/internal/platform/middleware"
	"otpguard/internal/ratelimit/models"
	"otpguard/internal/ratelimit/service"
	"otpguard/pkg/platform/httputil"
	"otpguard/pkg/requestcontext"
)

// Middleware wires the limiter into the HTTP chain. The check runs before the
// wrapped handler, and an admitted request stays counted whatever the handler
// later returns, so one request costs exactly one unit of quota.
type Middleware struct {
	limiter  *service.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder *audit.Recorder
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(met *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = met
	}
}

func WithAuditRecorder(r *audit.Recorder) Option {
	return func(m *Middleware) {
		m.recorder = r
	}
}

func New(limiter *service.Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Public throttles unauthenticated endpoints by requesting IP.
func (m *Middleware) Public(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)

		result, err := m.limiter.CheckIP(ctx, ip)
		if err != nil {
			// Fail open: losing the limiter backend must not take
			// the service down with it.
			m.logger.ErrorContext(ctx, "ip rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)

		if !result.Allowed {
			m.reject(ctx, w, models.TierPublic, ip, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Authenticated throttles token-bearing endpoints by subject. It must run
// after the auth middleware so the subject is present in the context.
func (m *Middleware) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		subject := platformmw.GetSubject(ctx)
		if subject == "" {
			// No subject means auth did not run; fall back to the IP tier
			// rather than sharing one anonymous bucket.
			m.Public(next).ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.CheckSubject(ctx, subject)
		if err != nil {
			m.logger.ErrorContext(ctx, "subject rate limit check failed", "error", err, "subject", subject)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)

		if !result.Allowed {
			m.reject(ctx, w, models.TierAuthenticated, subject, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) reject(ctx context.Context, w http.ResponseWriter, tier models.Tier, key string, result *models.Result) {
	if m.metrics != nil {
		m.metrics.RecordGatewayRejection(tier.String())
	}
	if m.recorder != nil {
		m.recorder.Record(ctx, audit.Event{
			Kind:         audit.KindRateLimitViolation,
			Identity:     key,
			RequestingIP: requestcontext.ClientIP(ctx),
			Detail:       tier.String(),
		})
	}
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
