package domain

import (
	"time"
)

// Consent lifecycle event types delivered to webhook subscribers.
const (
	EventConsentRevoked = "consent.revoked"
	EventConsentGranted = "consent.granted"
	EventConsentRenewed = "consent.renewed"
	EventTest           = "consent.test"
)

// DefaultMaxConsecutiveFailures is the circuit-breaker threshold applied to
// new subscriptions.
const DefaultMaxConsecutiveFailures = 5

// WebhookSubscription registers an external endpoint interested in consent
// lifecycle events. Once ConsecutiveFailures reaches MaxConsecutiveFailures
// the circuit opens: IsActive is forced to false and no deliveries are
// attempted until an operator re-enables it, which resets the counter.
type WebhookSubscription struct {
	ID                     string     `json:"id"`
	OwningAppID            string     `json:"owning_app_id"`
	WebhookURL             string     `json:"webhook_url"`
	Secret                 string     `json:"-"` // HMAC key, never serialized
	Events                 []string   `json:"events"`
	Description            string     `json:"description,omitempty"`
	IsActive               bool       `json:"is_active"`
	FailureCount           int64      `json:"failure_count"` // lifetime
	ConsecutiveFailures    int        `json:"consecutive_failures"`
	MaxConsecutiveFailures int        `json:"max_consecutive_failures"`
	LastTriggeredAt        *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt          *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt          *time.Time `json:"last_failure_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// WantsEvent reports whether the subscription's event filter matches the
// given event type. A filter entry of "*" matches everything.
func (s *WebhookSubscription) WantsEvent(eventType string) bool {
	for _, e := range s.Events {
		if e == "*" || e == eventType {
			return true
		}
	}
	return false
}

// RecordSuccess applies a successful logical delivery to the counters.
func (s *WebhookSubscription) RecordSuccess(now time.Time) {
	s.ConsecutiveFailures = 0
	s.LastTriggeredAt = &now
	s.LastSuccessAt = &now
	s.UpdatedAt = now
}

// RecordFailure applies a failed logical delivery to the counters and returns
// true when the failure opened the circuit.
func (s *WebhookSubscription) RecordFailure(now time.Time) (circuitOpened bool) {
	s.FailureCount++
	s.ConsecutiveFailures++
	s.LastTriggeredAt = &now
	s.LastFailureAt = &now
	s.UpdatedAt = now
	if s.IsActive && s.ConsecutiveFailures >= s.MaxConsecutiveFailures {
		s.IsActive = false
		return true
	}
	return false
}

// Reactivate closes the circuit: the consecutive-failure counter resets and
// deliveries resume. The lifetime failure count is kept.
func (s *WebhookSubscription) Reactivate(now time.Time) {
	s.IsActive = true
	s.ConsecutiveFailures = 0
	s.UpdatedAt = now
}

// WebhookDeliveryLog is one row per delivery attempt. Retries of the same
// logical delivery share a DeliveryID.
type WebhookDeliveryLog struct {
	ID             int64     `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	DeliveryID     string    `json:"delivery_id"`
	EventType      string    `json:"event_type"`
	AttemptNumber  int       `json:"attempt_number"`
	DeliveredAt    time.Time `json:"delivered_at"`
	ResponseStatus *int      `json:"response_status,omitempty"` // nil on network failure
	ResponseTimeMS int64     `json:"response_time_ms"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// WebhookEvent is the outbound payload delivered to subscribers.
type WebhookEvent struct {
	EventType  string            `json:"event_type"`
	ContentID  string            `json:"content_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Detail     map[string]string `json:"detail,omitempty"`
}
