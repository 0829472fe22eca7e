package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otpguard/internal/otp/models"
)

type InMemoryCooldownTrackerSuite struct {
	suite.Suite
	tracker *InMemoryCooldownTracker
	now     time.Time
}

func TestInMemoryCooldownTrackerSuite(t *testing.T) {
	suite.Run(t, new(InMemoryCooldownTrackerSuite))
}

func (s *InMemoryCooldownTrackerSuite) SetupTest() {
	s.tracker = NewInMemory()
	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func (s *InMemoryCooldownTrackerSuite) TestCheckAndArm() {
	ctx := context.Background()

	s.Run("first request is allowed and arms the window", func() {
		decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, s.now)
		s.Require().NoError(err)
		s.True(decision.Allowed)
	})

	s.Run("request inside the window is denied with remaining wait", func() {
		decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, s.now.Add(10*time.Second))
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal(50, decision.RemainingSeconds)
	})

	s.Run("remaining wait rounds up to a full second", func() {
		decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, s.now.Add(59*time.Second+500*time.Millisecond))
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal(1, decision.RemainingSeconds)
	})

	s.Run("purposes cool down independently", func() {
		decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeTrialAccess, time.Minute, s.now)
		s.Require().NoError(err)
		s.True(decision.Allowed)
	})

	s.Run("request at the deadline is allowed again", func() {
		decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, s.now.Add(time.Minute))
		s.Require().NoError(err)
		s.True(decision.Allowed)
	})
}

func (s *InMemoryCooldownTrackerSuite) TestCheckAndArmConcurrent() {
	ctx := context.Background()

	const racers = 16
	allowed := make([]bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, s.now)
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
	s.Equal(1, winners)
}

func (s *InMemoryCooldownTrackerSuite) TestRelease() {
	ctx := context.Background()

	decision, err := s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, s.now)
	s.Require().NoError(err)
	s.Require().True(decision.Allowed)

	s.Require().NoError(s.tracker.Release(ctx, "alice@example.com", models.PurposeLogin))

	decision, err = s.tracker.CheckAndArm(ctx, "alice@example.com", models.PurposeLogin, time.Minute, s.now.Add(time.Second))
	s.Require().NoError(err)
	s.True(decision.Allowed)
}
