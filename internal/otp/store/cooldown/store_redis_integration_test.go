//go:build integration

package cooldown_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otpguard/internal/otp/models"
	"otpguard/internal/otp/store/cooldown"
	"otpguard/pkg/testutil/containers"
)

type RedisCooldownTrackerSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	tracker *cooldown.RedisCooldownTracker
}

func TestRedisCooldownTrackerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCooldownTrackerSuite))
}

func (s *RedisCooldownTrackerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.tracker = cooldown.NewRedis(s.redis.Client)
}

func (s *RedisCooldownTrackerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCooldownTrackerSuite) TestCheckAndArm() {
	ctx := context.Background()
	now := time.Now()

	decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, now)
	s.Require().NoError(err)
	s.True(decision.Allowed)

	decision, err = s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, now)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Positive(decision.RemainingSeconds)
	s.LessOrEqual(decision.RemainingSeconds, 60)

	decision, err = s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeTrialAccess, time.Minute, now)
	s.Require().NoError(err)
	s.True(decision.Allowed, "purposes must cool down independently")
}

func (s *RedisCooldownTrackerSuite) TestCheckAndArmConcurrent() {
	ctx := context.Background()
	now := time.Now()

	const racers = 16
	allowed := make([]bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, now)
			s.NoError(err)
			allowed[i] = decision.Allowed
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range allowed {
		if ok {
			winners++
		}
	}
	s.Equal(1, winners, "SET NX admits exactly one concurrent caller")
}

func (s *RedisCooldownTrackerSuite) TestRelease() {
	ctx := context.Background()
	now := time.Now()

	decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, now)
	s.Require().NoError(err)
	s.Require().True(decision.Allowed)

	s.Require().NoError(s.tracker.Release(ctx, "alice@example.com", models.PurposeLogin))

	decision, err = s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, now)
	s.Require().NoError(err)
	s.True(decision.Allowed)
}

func (s *RedisCooldownTrackerSuite) TestWindowExpiresNaturally() {
	ctx := context.Background()

	decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, 500*time.Millisecond, time.Now())
	s.Require().NoError(err)
	s.Require().True(decision.Allowed)

	s.Eventually(func() bool {
		decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, time.Now())
		return err == nil && decision.Allowed
	}, 3*time.Second, 100*time.Millisecond)
}
