package domain

import "time"

// EventType names a lifecycle or escalation event emitted by the engine.
type EventType string

// Emitted event types.
const (
	EventIncidentCreated   EventType = "incident.created"
	EventIncidentResolved  EventType = "incident.resolved"
	EventIncidentClosed    EventType = "incident.closed"
	EventIncidentReopened  EventType = "incident.reopened"
	EventIncidentEscalated EventType = "incident.escalated"

	// EventPing is the synthetic event sent by manual subscription tests.
	EventPing EventType = "ping"
)

// Event is the payload fanned out to webhook subscriptions. One event is
// emitted per successful transition, after the store write is durable.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"event"`
	IncidentID string         `json:"incident_id"`
	ChantierID string         `json:"chantier_id,omitempty"`
	Status     IncidentStatus `json:"status,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data,omitempty"`
}
