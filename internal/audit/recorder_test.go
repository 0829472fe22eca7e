package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otpguard/pkg/requestcontext"
)

type RecorderSuite struct {
	suite.Suite
	store    *MemoryStore
	recorder *Recorder
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.store = NewMemoryStore()
	s.recorder = NewRecorder(logger, WithStore(s.store))
}

func (s *RecorderSuite) TestRecord() {
	s.Run("fills id, timestamp, and request id from context", func() {
		now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
		ctx := requestcontext.WithTime(context.Background(), now)
		ctx = requestcontext.WithRequestID(ctx, "req-42")

		s.recorder.Record(ctx, Event{Kind: KindCodeIssued, Identity: "alice@example.com"})

		events := s.store.Events()
		s.Require().Len(events, 1)
		s.NotEmpty(events[0].ID)
		s.Equal(now, events[0].OccurredAt)
		s.Equal("req-42", events[0].RequestID)
	})

	s.Run("explicit fields are preserved", func() {
		s.recorder.Record(context.Background(), Event{
			ID:         "fixed-id",
			Kind:       KindLockout,
			Identity:   "bob@example.com",
			OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})

		events, err := s.store.ListByIdentity(context.Background(), "bob@example.com", 0)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("fixed-id", events[0].ID)
	})

	s.Run("store failure does not propagate", func() {
		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		recorder := NewRecorder(logger, WithStore(failingStore{}))
		s.NotPanics(func() {
			recorder.Record(context.Background(), Event{Kind: KindVerifyFailed})
		})
	})
}

func (s *RecorderSuite) TestList() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.recorder.Record(ctx, Event{Kind: KindVerifyFailed, Identity: "alice@example.com", Detail: string(rune('a' + i))})
	}
	s.recorder.Record(ctx, Event{Kind: KindCodeIssued, Identity: "bob@example.com"})

	s.Run("returns only the identity's events newest first", func() {
		events, err := s.recorder.List(ctx, "alice@example.com", 0)
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		s.Equal("c", events[0].Detail)
		s.Equal("a", events[2].Detail)
	})

	s.Run("limit caps the result", func() {
		events, err := s.recorder.List(ctx, "alice@example.com", 2)
		s.Require().NoError(err)
		s.Len(events, 2)
	})

	s.Run("no store configured returns nil", func() {
		bare := NewRecorder(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
		events, err := bare.List(ctx, "alice@example.com", 0)
		s.NoError(err)
		s.Nil(events)
	})
}

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("disk full") }
func (failingStore) ListByIdentity(context.Context, string, int) ([]Event, error) {
	return nil, errors.New("disk full")
}
