package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"otpguard/internal/otp/models"
	"otpguard/internal/otp/ports/mocks"
	cooldownstore "otpguard/internal/otp/store/cooldown"
	recordstore "otpguard/internal/otp/store/record"
	"otpguard/internal/platform/config"
	dErrors "otpguard/pkg/domain-errors"
	"otpguard/pkg/requestcontext"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// The suite runs the service against the real in-memory stores so the
// concurrency guarantees under test are the ones production code paths use.
// Only the delivery collaborator is mocked.
type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	records   *recordstore.InMemoryRecordStore
	cooldowns *cooldownstore.InMemoryCooldownTracker
	notifier  *mocks.MockNotifier
	service   *Service

	now time.Time

	mu       sync.Mutex
	lastCode string
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.records = recordstore.NewInMemory()
	s.cooldowns = cooldownstore.NewInMemory()
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	var err error
	s.service, err = New(s.records, s.cooldowns, s.notifier, s.defaultConfig(),
		WithBcryptCost(bcrypt.MinCost))
	s.Require().NoError(err)
}

func (s *ServiceSuite) defaultConfig() config.OTPConfig {
	return config.OTPConfig{
		CodeLength:  6,
		TTL:         10 * time.Minute,
		MaxAttempts: 5,
		Cooldown:    60 * time.Second,
	}
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// expectDelivery arms the mock to accept sends and capture the code from the
// message body.
func (s *ServiceSuite) expectDelivery() {
	s.notifier.EXPECT().
		Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, body string) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.lastCode = codePattern.FindString(body)
			return nil
		}).
		AnyTimes()
}

func (s *ServiceSuite) issuedCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil record store returns error", func() {
		_, err := New(nil, s.cooldowns, s.notifier, s.defaultConfig())
		s.Error(err)
		s.Contains(err.Error(), "record store is required")
	})

	s.Run("nil cooldown tracker returns error", func() {
		_, err := New(s.records, nil, s.notifier, s.defaultConfig())
		s.Error(err)
		s.Contains(err.Error(), "cooldown tracker is required")
	})

	s.Run("nil notifier returns error", func() {
		_, err := New(s.records, s.cooldowns, nil, s.defaultConfig())
		s.Error(err)
		s.Contains(err.Error(), "notifier is required")
	})

	s.Run("non positive config returns error", func() {
		cfg := s.defaultConfig()
		cfg.MaxAttempts = 0
		_, err := New(s.records, s.cooldowns, s.notifier, cfg)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestIssue() {
	s.Run("successful issuance returns otp id and uniform message", func() {
		s.expectDelivery()

		result, err := s.service.Issue(s.ctx(), "Alice@Example.COM", "login")
		s.Require().NoError(err)
		s.True(result.Success)
		s.NotEmpty(result.OTPID)
		s.Contains(result.Message, "If an account exists")
		s.Len(s.issuedCode(), 6)
	})

	s.Run("stored record holds a hash, never the code", func() {
		s.expectDelivery()

		_, err := s.service.Issue(s.ctx(), "bob@example.com", "login")
		s.Require().NoError(err)

		record, err := s.records.Get(s.ctx(), "bob@example.com", models.PurposeLogin, s.now)
		s.Require().NoError(err)
		s.NotContains(record.CodeHash, s.issuedCode())
		s.NoError(bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(s.issuedCode())))
	})

	s.Run("malformed identity returns invalid input", func() {
		_, err := s.service.Issue(s.ctx(), "not-an-email", "login")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown purpose returns invalid input", func() {
		_, err := s.service.Issue(s.ctx(), "alice@example.com", "admin_backdoor")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestIssueCooldown() {
	s.expectDelivery()
	ctx := s.ctx()

	first, err := s.service.Issue(ctx, "alice@example.com", "login")
	s.Require().NoError(err)
	s.Require().True(first.Success)

	s.Run("immediate second request is throttled", func() {
		result, err := s.service.Issue(ctx, "alice@example.com", "login")
		s.Require().NoError(err)
		s.False(result.Success)
		s.Equal(models.ErrorCooldownActive, result.Error)
		s.Require().NotNil(result.CooldownRemainingSeconds)
		s.Positive(*result.CooldownRemainingSeconds)
	})

	s.Run("different purpose for same identity is independent", func() {
		result, err := s.service.Issue(ctx, "alice@example.com", "password_reset")
		s.Require().NoError(err)
		s.True(result.Success)
	})

	s.Run("request after the interval elapses succeeds", func() {
		later := requestcontext.WithTime(context.Background(), s.now.Add(61*time.Second))
		result, err := s.service.Issue(later, "alice@example.com", "login")
		s.Require().NoError(err)
		s.True(result.Success)
	})
}

func (s *ServiceSuite) TestIssueSupersedes() {
	s.expectDelivery()

	first, err := s.service.Issue(s.ctx(), "alice@example.com", "login")
	s.Require().NoError(err)
	firstCode := s.issuedCode()

	later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Minute))
	second, err := s.service.Issue(later, "alice@example.com", "login")
	s.Require().NoError(err)
	s.NotEqual(first.OTPID, second.OTPID)

	s.Run("old code no longer verifies", func() {
		result, err := s.service.Verify(later, "alice@example.com", "login", firstCode)
		s.Require().NoError(err)
		s.False(result.Success)
		// The superseded record is gone; the old code either misses or
		// mismatches depending on collision, never succeeds.
		s.NotEqual(models.ErrorKind(""), result.Error)
	})

	s.Run("new code verifies", func() {
		result, err := s.service.Verify(later, "alice@example.com", "login", s.issuedCode())
		s.Require().NoError(err)
		s.True(result.Success)
	})
}

func (s *ServiceSuite) TestIssueDeliveryFailure() {
	s.notifier.EXPECT().
		Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("smtp relay down"))

	result, err := s.service.Issue(s.ctx(), "alice@example.com", "login")
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal(models.ErrorDeliveryFailed, result.Error)

	s.Run("undelivered code is not verifiable", func() {
		_, err := s.records.Get(s.ctx(), "alice@example.com", models.PurposeLogin, s.now)
		s.Error(err)
	})

	s.Run("cooldown is released so a retry can go through", func() {
		s.expectDelivery()
		retry, err := s.service.Issue(s.ctx(), "alice@example.com", "login")
		s.Require().NoError(err)
		s.True(retry.Success)
	})
}

func (s *ServiceSuite) TestVerify() {
	s.expectDelivery()
	ctx := s.ctx()

	_, err := s.service.Issue(ctx, "alice@example.com", "login")
	s.Require().NoError(err)
	code := s.issuedCode()

	s.Run("no record for the pair returns not found", func() {
		result, err := s.service.Verify(ctx, "nobody@example.com", "login", code)
		s.Require().NoError(err)
		s.False(result.Success)
		s.Equal(models.ErrorNotFound, result.Error)
	})

	s.Run("wrong code decrements attempts remaining", func() {
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}
		result, err := s.service.Verify(ctx, "alice@example.com", "login", wrong)
		s.Require().NoError(err)
		s.False(result.Success)
		s.Equal(models.ErrorInvalidCode, result.Error)
		s.Require().NotNil(result.AttemptsRemaining)
		s.Equal(4, *result.AttemptsRemaining)
	})

	s.Run("correct code succeeds once", func() {
		result, err := s.service.Verify(ctx, "alice@example.com", "login", code)
		s.Require().NoError(err)
		s.True(result.Success)
	})

	s.Run("replaying the consumed code reports already used", func() {
		result, err := s.service.Verify(ctx, "alice@example.com", "login", code)
		s.Require().NoError(err)
		s.False(result.Success)
		s.Equal(models.ErrorAlreadyUsed, result.Error)
	})

	s.Run("malformed code returns invalid input without attempt cost", func() {
		_, err := s.service.Verify(ctx, "alice@example.com", "login", "12ab56")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestVerifyLockout() {
	s.expectDelivery()
	ctx := s.ctx()

	_, err := s.service.Issue(ctx, "alice@example.com", "login")
	s.Require().NoError(err)
	code := s.issuedCode()

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 5; i++ {
		result, err := s.service.Verify(ctx, "alice@example.com", "login", wrong)
		s.Require().NoError(err)
		s.Require().False(result.Success)
		s.Require().NotNil(result.AttemptsRemaining)
		s.Equal(4-i, *result.AttemptsRemaining)
	}

	s.Run("correct code after exhaustion stays locked", func() {
		result, err := s.service.Verify(ctx, "alice@example.com", "login", code)
		s.Require().NoError(err)
		s.False(result.Success)
		s.Equal(models.ErrorLocked, result.Error)
		s.Require().NotNil(result.AttemptsRemaining)
		s.Zero(*result.AttemptsRemaining)
	})

	s.Run("fresh issuance clears the lockout", func() {
		later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Minute))
		issued, err := s.service.Issue(later, "alice@example.com", "login")
		s.Require().NoError(err)
		s.Require().True(issued.Success)

		result, err := s.service.Verify(later, "alice@example.com", "login", s.issuedCode())
		s.Require().NoError(err)
		s.True(result.Success)
	})
}

func (s *ServiceSuite) TestVerifyExpiry() {
	s.expectDelivery()

	_, err := s.service.Issue(s.ctx(), "alice@example.com", "login")
	s.Require().NoError(err)
	code := s.issuedCode()

	s.Run("code within ttl verifies", func() {
		almost := requestcontext.WithTime(context.Background(), s.now.Add(10*time.Minute))
		record, err := s.records.Get(almost, "alice@example.com", models.PurposeLogin, s.now.Add(10*time.Minute))
		s.Require().NoError(err)
		s.False(record.IsExpired(s.now.Add(10 * time.Minute)))
	})

	s.Run("code past its ttl reports not found", func() {
		expired := requestcontext.WithTime(context.Background(), s.now.Add(10*time.Minute+time.Second))
		result, err := s.service.Verify(expired, "alice@example.com", "login", code)
		s.Require().NoError(err)
		s.False(result.Success)
		s.Equal(models.ErrorNotFound, result.Error)
	})
}

func (s *ServiceSuite) TestVerifyConcurrentSingleWinner() {
	s.expectDelivery()
	ctx := s.ctx()

	_, err := s.service.Issue(ctx, "alice@example.com", "login")
	s.Require().NoError(err)
	code := s.issuedCode()

	const racers = 8
	results := make([]*models.VerifyResult, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := s.service.Verify(ctx, "alice@example.com", "login", code)
			s.NoError(err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, result := range results {
		s.Require().NotNil(result)
		if result.Success {
			winners++
		}
	}
	s.Equal(1, winners)
}

func (s *ServiceSuite) TestSweepExpired() {
	s.expectDelivery()

	_, err := s.service.Issue(s.ctx(), "alice@example.com", "login")
	s.Require().NoError(err)
	_, err = s.service.Issue(s.ctx(), "bob@example.com", "login")
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), s.now.Add(11*time.Minute))
	swept, err := s.service.SweepExpired(later)
	s.Require().NoError(err)
	s.Equal(2, swept)
}
