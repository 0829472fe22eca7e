package service

import (
	"context"
	"errors"
	"log/slog"

	"otpguard/internal/platform/config"
	"otpguard/internal/ratelimit/models"
	"otpguard/internal/ratelimit/ports"
	"otpguard/pkg/requestcontext"
)

// Limiter applies the per-tier request ceilings. Public traffic is keyed by
// requesting IP, authenticated traffic by token subject; the two tiers use
// independent buckets.
type Limiter struct {
	store  ports.BucketStore
	cfg    config.RateLimitConfig
	logger *slog.Logger
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func New(store ports.BucketStore, cfg config.RateLimitConfig, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("bucket store is required")
	}
	if cfg.PublicLimit <= 0 || cfg.AuthenticatedLimit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("rate limit config values must be positive")
	}

	l := &Limiter{
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckIP enforces the public tier ceiling for one requesting IP.
func (l *Limiter) CheckIP(ctx context.Context, ip string) (*models.Result, error) {
	return l.store.Take(ctx, string(models.TierPublic)+":"+ip,
		l.cfg.PublicLimit, l.cfg.Window, requestcontext.Now(ctx))
}

// CheckSubject enforces the authenticated tier ceiling for one token subject.
func (l *Limiter) CheckSubject(ctx context.Context, subject string) (*models.Result, error) {
	return l.store.Take(ctx, string(models.TierAuthenticated)+":"+subject,
		l.cfg.AuthenticatedLimit, l.cfg.Window, requestcontext.Now(ctx))
}
