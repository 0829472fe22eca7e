package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otpguard/pkg/platform/sentinel"
)

type WebhookSenderSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestWebhookSenderSuite(t *testing.T) {
	suite.Run(t, new(WebhookSenderSuite))
}

func (s *WebhookSenderSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func (s *WebhookSenderSuite) TestSend() {
	s.Run("posts the message as json", func() {
		var received Message
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.Equal("application/json", r.Header.Get("Content-Type"))
			s.NoError(json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		sender := NewWebhookSender(srv.URL, 5*time.Second, s.logger)
		err := sender.Send(context.Background(), "alice@example.com", "Your sign-in code", "code body")
		s.Require().NoError(err)
		s.Equal("alice@example.com", received.Destination)
		s.Equal("Your sign-in code", received.Subject)
	})

	s.Run("non-2xx response is a delivery failure", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		sender := NewWebhookSender(srv.URL, 5*time.Second, s.logger)
		err := sender.Send(context.Background(), "alice@example.com", "subject", "body")
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})

	s.Run("unreachable provider is a delivery failure", func() {
		sender := NewWebhookSender("http://127.0.0.1:1", time.Second, s.logger)
		err := sender.Send(context.Background(), "alice@example.com", "subject", "body")
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})
}

func (s *WebhookSenderSuite) TestCompose() {
	s.Run("subject tracks the purpose", func() {
		subjects := map[string]string{
			"login":                "Your sign-in code",
			"password_reset":       "Your password reset code",
			"account_verification": "Verify your account",
			"trial_access":         "Your trial access code",
		}
		for purpose, want := range subjects {
			subject, _ := Compose(purpose, "alice@example.com", "123456", 10*time.Minute)
			s.Equal(want, subject, purpose)
		}
	})

	s.Run("body carries the code, ttl, and a greeting", func() {
		_, body := Compose("login", "jane.doe@example.com", "042137", 10*time.Minute)
		s.Contains(body, "042137")
		s.Contains(body, "10 minutes")
		s.Contains(body, "Hi Jane")
	})
}
