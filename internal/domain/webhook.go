package domain

import (
	"strings"
	"time"
)

// Subscription represents a registered webhook endpoint.
//
// The signing secret is generated once at creation, returned to the caller in
// plaintext exactly once, and stored only in encrypted form (SecretEnc).
type Subscription struct {
	ID                  string    `json:"id"`
	URL                 string    `json:"url"`
	EventPatterns       []string  `json:"event_patterns"`
	Description         string    `json:"description,omitempty"`
	SecretEnc           []byte    `json:"-"`
	Active              bool      `json:"active"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Matches reports whether the subscription listens for the given event.
// A pattern is either an exact event name or a prefix wildcard such as
// "incident.*", which matches every event under that prefix.
func (s *Subscription) Matches(event EventType) bool {
	name := string(event)
	for _, p := range s.EventPatterns {
		if p == name {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DeliveryRecord is the append-only audit entry for one delivery attempt of
// one event against one subscription. Records are never mutated.
type DeliveryRecord struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	EventID        string    `json:"event_id"`
	EventType      EventType `json:"event_type"`
	Attempt        int       `json:"attempt"`
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	Error          string    `json:"error,omitempty"`
	DeliveredAt    time.Time `json:"delivered_at"`
}
