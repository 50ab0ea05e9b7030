package domain

import "time"

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen       IncidentStatus = "open"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusClosed     IncidentStatus = "closed"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusInProgress,
		IncidentStatusResolved, IncidentStatusClosed:
		return true
	}
	return false
}

// IsActive reports whether the incident is still subject to the SLA clock.
// Resolved and closed incidents are frozen and never re-breach.
func (s IncidentStatus) IsActive() bool {
	return s == IncidentStatusOpen || s == IncidentStatusInProgress
}

// IncidentPriority represents the priority of an incident.
type IncidentPriority string

// Incident priorities.
const (
	PriorityCritical IncidentPriority = "critical"
	PriorityHigh     IncidentPriority = "high"
	PriorityMedium   IncidentPriority = "medium"
	PriorityLow      IncidentPriority = "low"
)

// IsValid checks if the priority is valid.
func (p IncidentPriority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// SLAWindow returns the resolution window bound to a priority at creation time.
// The window is a product constant: changing these values never affects
// incidents already created, whose deadline anchors on their own created_at.
func (p IncidentPriority) SLAWindow() time.Duration {
	switch p {
	case PriorityCritical:
		return 4 * time.Hour
	case PriorityHigh:
		return 24 * time.Hour
	case PriorityMedium:
		return 48 * time.Hour
	case PriorityLow:
		return 72 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// Incident represents a site incident report (signalement).
type Incident struct {
	ID                    string           `json:"id"`
	ChantierID            string           `json:"chantier_id"`
	Title                 string           `json:"title"`
	Description           string           `json:"description"`
	Location              *string          `json:"location,omitempty"`
	PhotoURL              *string          `json:"photo_url,omitempty"`
	Priority              IncidentPriority `json:"priority"`
	Status                IncidentStatus   `json:"status"`
	CreatedBy             string           `json:"created_by"`
	AssignedTo            *string          `json:"assigned_to,omitempty"`
	DesiredResolutionDate *time.Time       `json:"desired_resolution_date,omitempty"`
	ResolutionComment     string           `json:"resolution_comment,omitempty"`
	ResponseCount         int              `json:"response_count"`
	EscalationCount       int              `json:"escalation_count"`
	LastEscalatedAt       *time.Time       `json:"last_escalated_at,omitempty"`
	ResolvedAt            *time.Time       `json:"resolved_at,omitempty"`
	ClosedAt              *time.Time       `json:"closed_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// Response represents a reply attached to an incident.
type Response struct {
	ID           string    `json:"id"`
	IncidentID   string    `json:"incident_id"`
	Content      string    `json:"content"`
	PhotoURL     *string   `json:"photo_url,omitempty"`
	IsResolution bool      `json:"is_resolution"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}
