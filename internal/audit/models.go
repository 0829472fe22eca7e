package audit

import "time"

// Event kinds recorded by the passcode engine. Kinds are stable strings:
// they key dashboards and alerting downstream.
const (
	KindCodeIssued         = "code_issued"
	KindCooldownHit        = "cooldown_hit"
	KindVerifyFailed       = "verify_failed"
	KindLockout            = "lockout"
	KindReplayDetected     = "replay_detected"
	KindDeliveryFailed     = "delivery_failed"
	KindRateLimitViolation = "rate_limit_violation"
)

// Event is emitted from domain logic to capture security-relevant actions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Identity     string    `json:"identity,omitempty"`
	Purpose      string    `json:"purpose,omitempty"`
	RequestingIP string    `json:"requesting_ip,omitempty"`
	Device       string    `json:"device,omitempty"` // parsed User-Agent summary
	RequestID    string    `json:"request_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
