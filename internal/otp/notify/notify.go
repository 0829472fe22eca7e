// Package notify implements the delivery collaborator boundary. The engine
// only hands over a destination and a message; everything past that point is
// the notification provider's problem, and any failure is terminal for the
// issuance attempt that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"otpguard/pkg/email"
	"otpguard/pkg/platform/sentinel"
)

// Message is the wire shape handed to the webhook provider.
type Message struct {
	Destination string `json:"destination"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// WebhookSender POSTs messages to the configured provider endpoint with a
// bounded timeout. Non-2xx responses and transport errors both mean the code
// never reached the user.
type WebhookSender struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSender constructs a sender against the provider URL.
func NewWebhookSender(url string, timeout time.Duration, logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *WebhookSender) Send(ctx context.Context, destination, subject, body string) error {
	payload, err := json.Marshal(Message{Destination: destination, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification provider returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	return nil
}

// LogSender writes codes to the log instead of delivering them. Dev only:
// it defeats the entire point of the engine anywhere else.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, destination, subject, body string) error {
	s.logger.InfoContext(ctx, "notification (log sender)",
		"destination", destination,
		"subject", subject,
		"body", body,
	)
	return nil
}

// Compose renders the delivery subject and body for a purpose. Templates stay
// here so the engine never concerns itself with copywriting.
func Compose(purpose, identity, code string, ttl time.Duration) (subject, body string) {
	first, _ := email.DeriveNameFromEmail(identity)
	minutes := int(ttl.Minutes())

	switch purpose {
	case "password_reset":
		subject = "Your password reset code"
	case "account_verification":
		subject = "Verify your account"
	case "trial_access":
		subject = "Your trial access code"
	default:
		subject = "Your sign-in code"
	}

	body = fmt.Sprintf("Hi %s,\n\nYour verification code is %s. It expires in %d minutes.\n\nIf you did not request this code, you can ignore this message.",
		first, code, minutes)
	return subject, body
}
