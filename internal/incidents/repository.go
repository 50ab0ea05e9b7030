package incidents

import (
	"context"
	"time"

	"github.com/chantierops/signalement/internal/domain"
)

// Repository defines the interface for incident storage.
//
// The guarded transition methods apply their update only when the incident
// still holds the expected status, and return ErrStatusConflict when the row
// did not match. This serializes concurrent transitions against the same
// incident without explicit locking.
type Repository interface {
	CreateIncident(ctx context.Context, inc *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters Filters) ([]*domain.Incident, error)
	// ListActiveIncidents returns open and in-progress incidents, oldest
	// first, optionally scoped to one chantier (empty string means all).
	// Used by the escalation scheduler and overdue queries.
	ListActiveIncidents(ctx context.Context, chantierID string) ([]*domain.Incident, error)

	SetInProgress(ctx context.Context, id string, at time.Time) (*domain.Incident, error)
	AssignIncident(ctx context.Context, id, userID string, at time.Time) (*domain.Incident, error)
	MarkResolved(ctx context.Context, id, comment string, at time.Time) (*domain.Incident, error)
	CloseIncident(ctx context.Context, id string, at time.Time) (*domain.Incident, error)
	ReopenIncident(ctx context.Context, id string, at time.Time) (*domain.Incident, error)

	// RecordEscalation increments escalation_count only when it still equals
	// expectedCount, so concurrent scheduler steps cannot double-fire.
	RecordEscalation(ctx context.Context, id string, expectedCount int, at time.Time) (*domain.Incident, error)

	AddResponse(ctx context.Context, resp *domain.Response) error
	ListResponses(ctx context.Context, incidentID string) ([]*domain.Response, error)
}

// Filters holds filter options for listing incidents.
type Filters struct {
	ChantierID string
	Status     *domain.IncidentStatus
	Priority   *domain.IncidentPriority
	Limit      int
	Offset     int
}
