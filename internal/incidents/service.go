// Package incidents owns the incident store and the lifecycle state machine.
//
// All incident and response mutations go through this package. Every
// successful transition emits exactly one lifecycle event after the store
// write is durable; event delivery is decoupled and can never fail a
// transition.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/pkg/clock"
	"github.com/chantierops/signalement/internal/pkg/ctxlog"
	"github.com/chantierops/signalement/internal/pkg/textnorm"
	"github.com/chantierops/signalement/internal/sla"
	"github.com/google/uuid"
)

// EventEmitter receives lifecycle events for fan-out to subscribers.
// Implementations must not block the caller beyond enqueueing.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.Event)
}

// Service implements incident business logic.
type Service struct {
	repo    Repository
	emitter EventEmitter
	clock   clock.Clock
}

// NewService creates a new incident service. A nil emitter disables event
// fan-out (used by tests and read-only tooling).
func NewService(repo Repository, emitter EventEmitter, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		repo:    repo,
		emitter: emitter,
		clock:   clk,
	}
}

// View is an incident together with its derived SLA reading. The reading is
// never stored; it is recomputed from the clock on every read.
type View struct {
	domain.Incident
	SLA sla.Reading `json:"sla"`
}

func (s *Service) view(inc *domain.Incident) *View {
	return &View{Incident: *inc, SLA: sla.Evaluate(inc, s.clock.Now())}
}

func (s *Service) views(list []*domain.Incident) []*View {
	now := s.clock.Now()
	out := make([]*View, 0, len(list))
	for _, inc := range list {
		out = append(out, &View{Incident: *inc, SLA: sla.Evaluate(inc, now)})
	}
	return out
}

// CreateInput holds data for reporting a new incident.
type CreateInput struct {
	ChantierID            string
	Title                 string
	Description           string
	Location              *string
	PhotoURL              *string
	Priority              domain.IncidentPriority
	AssignedTo            *string
	DesiredResolutionDate *time.Time
}

// Create reports a new incident in the open state and emits incident.created.
func (s *Service) Create(ctx context.Context, input CreateInput, createdBy string) (*View, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if !input.Priority.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriority, input.Priority)
	}

	inc := &domain.Incident{
		ChantierID:            input.ChantierID,
		Title:                 input.Title,
		Description:           input.Description,
		Location:              input.Location,
		PhotoURL:              input.PhotoURL,
		Priority:              input.Priority,
		Status:                domain.IncidentStatusOpen,
		CreatedBy:             createdBy,
		AssignedTo:            input.AssignedTo,
		DesiredResolutionDate: input.DesiredResolutionDate,
	}

	if err := s.repo.CreateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	s.emit(ctx, domain.EventIncidentCreated, inc, nil)

	return s.view(inc), nil
}

// Get retrieves an incident with its current SLA reading.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	inc, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(inc), nil
}

// List retrieves incidents for a chantier with optional status and priority
// filters.
func (s *Service) List(ctx context.Context, filters Filters) ([]*View, error) {
	list, err := s.repo.ListIncidents(ctx, filters)
	if err != nil {
		return nil, err
	}
	return s.views(list), nil
}

// Search retrieves incidents whose title, description or location contains
// the query, ignoring case and accents.
func (s *Service) Search(ctx context.Context, query string, filters Filters) ([]*View, error) {
	filters.Limit = 0
	filters.Offset = 0

	list, err := s.repo.ListIncidents(ctx, filters)
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.Incident, 0, len(list))
	for _, inc := range list {
		if matchesQuery(inc, query) {
			matched = append(matched, inc)
		}
	}
	return s.views(matched), nil
}

func matchesQuery(inc *domain.Incident, query string) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}
	if textnorm.Contains(inc.Title, query) || textnorm.Contains(inc.Description, query) {
		return true
	}
	return inc.Location != nil && textnorm.Contains(*inc.Location, query)
}

// ListOverdue returns active incidents past their SLA deadline.
func (s *Service) ListOverdue(ctx context.Context) ([]*View, error) {
	active, err := s.repo.ListActiveIncidents(ctx, "")
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]*View, 0)
	for _, inc := range active {
		if reading := sla.Evaluate(inc, now); reading.Overdue {
			out = append(out, &View{Incident: *inc, SLA: reading})
		}
	}
	return out, nil
}

// Start explicitly moves an open incident to in_progress.
func (s *Service) Start(ctx context.Context, id string) (*View, error) {
	inc, err := s.repo.SetInProgress(ctx, id, s.clock.Now())
	if err != nil {
		return nil, s.transitionFailure(ctx, id, domain.IncidentStatusInProgress, err)
	}
	return s.view(inc), nil
}

// Assign sets the assignee. Assigning an open incident implicitly moves it
// to in_progress; reassigning an in-progress incident keeps its status.
func (s *Service) Assign(ctx context.Context, id, userID string) (*View, error) {
	inc, err := s.repo.AssignIncident(ctx, id, userID, s.clock.Now())
	if err != nil {
		return nil, s.transitionFailure(ctx, id, domain.IncidentStatusInProgress, err)
	}
	return s.view(inc), nil
}

// MarkResolved resolves an open or in-progress incident. The resolution
// comment is required and recorded both on the incident and as a resolution
// response.
func (s *Service) MarkResolved(ctx context.Context, id, comment, resolvedBy string) (*View, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, ErrEmptyResolutionComment
	}

	inc, err := s.repo.MarkResolved(ctx, id, comment, s.clock.Now())
	if err != nil {
		return nil, s.transitionFailure(ctx, id, domain.IncidentStatusResolved, err)
	}

	// The resolution response is an audit convenience; its failure must not
	// undo an already durable transition.
	resp := &domain.Response{
		IncidentID:   inc.ID,
		Content:      comment,
		IsResolution: true,
		CreatedBy:    resolvedBy,
	}
	if err := s.repo.AddResponse(ctx, resp); err != nil {
		ctxlog.FromContext(ctx).Error("failed to record resolution response",
			"incident_id", inc.ID, "error", err)
	} else {
		inc.ResponseCount++
	}

	s.emit(ctx, domain.EventIncidentResolved, inc, nil)

	return s.view(inc), nil
}

// Close closes a resolved incident.
func (s *Service) Close(ctx context.Context, id string) (*View, error) {
	inc, err := s.repo.CloseIncident(ctx, id, s.clock.Now())
	if err != nil {
		return nil, s.transitionFailure(ctx, id, domain.IncidentStatusClosed, err)
	}

	s.emit(ctx, domain.EventIncidentClosed, inc, nil)

	return s.view(inc), nil
}

// Reopen reopens a closed incident. The SLA clock keeps its original
// created_at anchor, but the escalation history of the previous cycle is
// cleared so the new overdue episode starts fresh.
func (s *Service) Reopen(ctx context.Context, id string) (*View, error) {
	inc, err := s.repo.ReopenIncident(ctx, id, s.clock.Now())
	if err != nil {
		return nil, s.transitionFailure(ctx, id, domain.IncidentStatusOpen, err)
	}

	s.emit(ctx, domain.EventIncidentReopened, inc, nil)

	return s.view(inc), nil
}

// AddResponseInput holds data for replying to an incident.
type AddResponseInput struct {
	IncidentID string
	Content    string
	PhotoURL   *string
}

// AddResponse attaches a response to an incident and bumps response_count.
func (s *Service) AddResponse(ctx context.Context, input AddResponseInput, createdBy string) (*domain.Response, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrEmptyResponseContent
	}

	if _, err := s.repo.GetIncident(ctx, input.IncidentID); err != nil {
		return nil, err
	}

	resp := &domain.Response{
		IncidentID: input.IncidentID,
		Content:    input.Content,
		PhotoURL:   input.PhotoURL,
		CreatedBy:  createdBy,
	}
	if err := s.repo.AddResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("add response: %w", err)
	}
	return resp, nil
}

// ListResponses returns all responses of an incident, oldest first.
func (s *Service) ListResponses(ctx context.Context, incidentID string) ([]*domain.Response, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListResponses(ctx, incidentID)
}

// transitionFailure converts a guarded-update miss into a precise
// TransitionError by re-reading current state.
func (s *Service) transitionFailure(ctx context.Context, id string, requested domain.IncidentStatus, err error) error {
	if !errors.Is(err, ErrStatusConflict) {
		return err
	}

	current, readErr := s.repo.GetIncident(ctx, id)
	if readErr != nil {
		if errors.Is(readErr, ErrIncidentNotFound) {
			return ErrIncidentNotFound
		}
		return fmt.Errorf("reread incident after conflict: %w", readErr)
	}

	return &TransitionError{From: current.Status, To: requested}
}

// emit publishes a lifecycle event. Emission happens strictly after the
// durable write and is fire-and-forget.
func (s *Service) emit(ctx context.Context, eventType domain.EventType, inc *domain.Incident, data map[string]any) {
	if s.emitter == nil {
		return
	}

	s.emitter.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		IncidentID: inc.ID,
		ChantierID: inc.ChantierID,
		Status:     inc.Status,
		Timestamp:  s.clock.Now(),
		Data:       data,
	})
}
