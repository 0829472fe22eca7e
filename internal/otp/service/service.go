package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"otpguard/internal/audit"
	"otpguard/internal/otp/generator"
	"otpguard/internal/otp/models"
	"otpguard/internal/otp/notify"
	"otpguard/internal/otp/ports"
	"otpguard/internal/platform/config"
	"otpguard/internal/platform/metrics"
	dErrors "otpguard/pkg/domain-errors"
	"otpguard/pkg/email"
	"otpguard/pkg/platform/sentinel"
	"otpguard/pkg/requestcontext"
)

// issuedMessage is identical for known and unknown identities so issuance
// responses cannot be used to enumerate accounts.
const issuedMessage = "If an account exists for this address, a verification code has been sent."

// Service is the passcode engine: issuance with cooldown and delivery
// hand-off, and bounded-attempt one-time verification. All shared state lives
// behind the injected stores; the service itself holds no mutable state, so
// one instance serves concurrent requests.
type Service struct {
	records    ports.RecordStore
	cooldowns  ports.CooldownTracker
	notifier   ports.Notifier
	gen        *generator.Generator
	cfg        config.OTPConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	recorder   *audit.Recorder
	tracer     trace.Tracer
	bcryptCost int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditRecorder(r *audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithBcryptCost overrides the hash cost. Tests use bcrypt.MinCost to keep
// suites fast; production keeps the default.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(
	records ports.RecordStore,
	cooldowns ports.CooldownTracker,
	notifier ports.Notifier,
	cfg config.OTPConfig,
	opts ...Option,
) (*Service, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if cooldowns == nil {
		return nil, errors.New("cooldown tracker is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if cfg.CodeLength <= 0 || cfg.TTL <= 0 || cfg.MaxAttempts <= 0 || cfg.Cooldown <= 0 {
		return nil, errors.New("otp config values must be positive")
	}

	svc := &Service{
		records:    records,
		cooldowns:  cooldowns,
		notifier:   notifier,
		gen:        generator.New(cfg.CodeLength),
		cfg:        cfg,
		logger:     slog.Default(),
		tracer:     otel.Tracer("otpguard/otp"),
		bcryptCost: bcrypt.DefaultCost,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Issue generates, stores, and dispatches a fresh passcode for the pair.
// Any prior record for the pair is superseded. A delivery failure rolls the
// whole issuance back: the undelivered code is not verifiable and the
// cooldown is disarmed so the user can retry immediately.
func (s *Service) Issue(ctx context.Context, rawIdentity, rawPurpose string) (*models.IssueResult, error) {
	ctx, span := s.tracer.Start(ctx, "otp.issue")
	defer span.End()

	identity := email.Normalize(rawIdentity)
	if err := email.Validate(identity); err != nil {
		return nil, err
	}
	purpose, err := models.ParsePurpose(rawPurpose)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("otp.purpose", purpose.String()))

	now := requestcontext.Now(ctx)

	decision, err := s.cooldowns.CheckAndArm(ctx, identity, purpose, s.cfg.Cooldown, now)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "cooldown tracker unreachable", err)
	}
	if !decision.Allowed {
		if s.metrics != nil {
			s.metrics.CooldownHits.Inc()
		}
		s.record(ctx, audit.Event{Kind: audit.KindCooldownHit, Identity: identity, Purpose: purpose.String()})
		remaining := decision.RemainingSeconds
		return &models.IssueResult{
			Success:                  false,
			Error:                    models.ErrorCooldownActive,
			Message:                  "A code was sent recently. Please wait before requesting another.",
			CooldownRemainingSeconds: &remaining,
		}, nil
	}

	// Past this point the cooldown is armed. Failures must disarm it so a
	// user who never received a code is not locked out of retrying.
	code, otpID, err := s.gen.Generate()
	if err != nil {
		s.releaseCooldown(ctx, identity, purpose)
		return nil, dErrors.Wrap(dErrors.CodeInternal, "code generation failed", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		s.releaseCooldown(ctx, identity, purpose)
		return nil, dErrors.Wrap(dErrors.CodeInternal, "code hashing failed", err)
	}

	record, err := models.NewRecord(identity, purpose, string(hash), otpID, now, s.cfg.TTL, s.cfg.MaxAttempts, requestcontext.ClientIP(ctx))
	if err != nil {
		s.releaseCooldown(ctx, identity, purpose)
		return nil, err
	}

	putStart := time.Now()
	err = s.records.Put(ctx, record)
	s.observeStore(putStart)
	if err != nil {
		s.releaseCooldown(ctx, identity, purpose)
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "record store unreachable", err)
	}

	subject, body := notify.Compose(purpose.String(), identity, code, s.cfg.TTL)
	if err := s.notifier.Send(ctx, identity, subject, body); err != nil {
		// Undelivered codes must not stay verifiable.
		if delErr := s.records.Delete(ctx, identity, purpose); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to invalidate undelivered code",
				"identity", identity, "purpose", purpose, "error", delErr)
		}
		s.releaseCooldown(ctx, identity, purpose)
		if s.metrics != nil {
			s.metrics.DeliveryFailures.Inc()
		}
		s.record(ctx, audit.Event{Kind: audit.KindDeliveryFailed, Identity: identity, Purpose: purpose.String(), Detail: err.Error()})
		s.logger.WarnContext(ctx, "passcode delivery failed", "purpose", purpose, "error", err)
		return &models.IssueResult{
			Success: false,
			Error:   models.ErrorDeliveryFailed,
			Message: "We could not deliver a code right now. Please try again.",
		}, nil
	}

	if s.metrics != nil {
		s.metrics.CodesIssued.Inc()
	}
	s.record(ctx, audit.Event{
		Kind:         audit.KindCodeIssued,
		Identity:     identity,
		Purpose:      purpose.String(),
		RequestingIP: requestcontext.ClientIP(ctx),
		Device:       audit.DeviceFromUserAgent(requestcontext.UserAgent(ctx)),
	})

	return &models.IssueResult{
		Success: true,
		OTPID:   otpID,
		Message: issuedMessage,
	}, nil
}

// Verify validates a submitted code against the pair's live record.
//
// The attempt counter is incremented before the hash comparison so concurrent
// guesses cannot exceed the ceiling in aggregate, and success is gated on the
// store's consumed compare-and-set so exactly one concurrent correct
// submission wins.
func (s *Service) Verify(ctx context.Context, rawIdentity, rawPurpose, submittedCode string) (*models.VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "otp.verify")
	defer span.End()

	identity := email.Normalize(rawIdentity)
	if err := email.Validate(identity); err != nil {
		return nil, err
	}
	purpose, err := models.ParsePurpose(rawPurpose)
	if err != nil {
		return nil, err
	}
	if !validCodeShape(submittedCode, s.cfg.CodeLength) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "malformed code")
	}
	span.SetAttributes(attribute.String("otp.purpose", purpose.String()))

	now := requestcontext.Now(ctx)

	getStart := time.Now()
	record, err := s.records.Get(ctx, identity, purpose, now)
	s.observeStore(getStart)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.outcome(ctx, "not_found", &models.VerifyResult{Success: false, Error: models.ErrorNotFound}), nil
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "record store unreachable", err)
	}

	// Replay of a consumed code carries no attempt cost; the record is spent.
	if record.Consumed {
		s.record(ctx, audit.Event{Kind: audit.KindReplayDetected, Identity: identity, Purpose: purpose.String(), RequestingIP: requestcontext.ClientIP(ctx)})
		return s.outcome(ctx, "already_used", &models.VerifyResult{Success: false, Error: models.ErrorAlreadyUsed}), nil
	}

	// Lockout is sticky until a fresh code is issued; no further increments.
	if record.IsLocked() {
		zero := 0
		return s.outcome(ctx, "locked", &models.VerifyResult{Success: false, Error: models.ErrorLocked, AttemptsRemaining: &zero}), nil
	}

	attempts, err := s.records.IncrementAttempt(ctx, identity, purpose)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Superseded or expired between Get and the increment.
			return s.outcome(ctx, "not_found", &models.VerifyResult{Success: false, Error: models.ErrorNotFound}), nil
		}
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "record store unreachable", err)
	}

	// bcrypt's comparison is constant-time on the derived digest.
	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(submittedCode)) != nil {
		remaining := record.MaxAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		if attempts >= record.MaxAttempts {
			s.record(ctx, audit.Event{Kind: audit.KindLockout, Identity: identity, Purpose: purpose.String(), RequestingIP: requestcontext.ClientIP(ctx)})
		} else {
			s.record(ctx, audit.Event{Kind: audit.KindVerifyFailed, Identity: identity, Purpose: purpose.String(), RequestingIP: requestcontext.ClientIP(ctx)})
		}
		return s.outcome(ctx, "invalid_code", &models.VerifyResult{Success: false, Error: models.ErrorInvalidCode, AttemptsRemaining: &remaining}), nil
	}

	consumed, err := s.records.MarkConsumed(ctx, identity, purpose)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "record store unreachable", err)
	}
	if !consumed {
		// A concurrent verification with the same code got there first.
		s.record(ctx, audit.Event{Kind: audit.KindReplayDetected, Identity: identity, Purpose: purpose.String(), RequestingIP: requestcontext.ClientIP(ctx)})
		return s.outcome(ctx, "already_used", &models.VerifyResult{Success: false, Error: models.ErrorAlreadyUsed}), nil
	}

	return s.outcome(ctx, "success", &models.VerifyResult{Success: true}), nil
}

// SweepExpired reclaims expired records. Optional housekeeping: Get hides
// expired records either way.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.records.DeleteExpired(ctx, requestcontext.Now(ctx))
}

func (s *Service) outcome(_ context.Context, label string, result *models.VerifyResult) *models.VerifyResult {
	if s.metrics != nil {
		s.metrics.RecordVerification(label)
	}
	return result
}

// observeStore records record-store latency against wall-clock time; the
// request-scoped clock stays frozen in tests and would observe zero.
func (s *Service) observeStore(start time.Time) {
	if s.metrics != nil {
		s.metrics.StoreLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.recorder != nil {
		s.recorder.Record(ctx, event)
	}
}

func (s *Service) releaseCooldown(ctx context.Context, identity string, purpose models.Purpose) {
	if err := s.cooldowns.Release(ctx, identity, purpose); err != nil {
		s.logger.WarnContext(ctx, "failed to release cooldown",
			"identity", identity, "purpose", purpose, "error", err)
	}
}

func validCodeShape(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
