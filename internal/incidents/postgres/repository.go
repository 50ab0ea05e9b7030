// Package postgres provides the PostgreSQL implementation of the incidents
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/incidents"
	"github.com/chantierops/signalement/internal/stats"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `
	id, chantier_id, title, description, location, photo_url,
	priority, status, created_by, assigned_to, desired_resolution_date,
	resolution_comment, response_count, escalation_count, last_escalated_at,
	resolved_at, closed_at, created_at, updated_at`

// Repository implements incidents.Repository and stats.Repository using
// PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.ChantierID,
		&inc.Title,
		&inc.Description,
		&inc.Location,
		&inc.PhotoURL,
		&inc.Priority,
		&inc.Status,
		&inc.CreatedBy,
		&inc.AssignedTo,
		&inc.DesiredResolutionDate,
		&inc.ResolutionComment,
		&inc.ResponseCount,
		&inc.EscalationCount,
		&inc.LastEscalatedAt,
		&inc.ResolvedAt,
		&inc.ClosedAt,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// CreateIncident creates a new incident in the open state.
func (r *Repository) CreateIncident(ctx context.Context, inc *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			chantier_id, title, description, location, photo_url,
			priority, created_by, assigned_to, desired_resolution_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		inc.ChantierID,
		inc.Title,
		inc.Description,
		inc.Location,
		inc.PhotoURL,
		inc.Priority,
		inc.CreatedBy,
		inc.AssignedTo,
		inc.DesiredResolutionDate,
	).Scan(&inc.ID, &inc.Status, &inc.CreatedAt, &inc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// ListIncidents retrieves incidents with optional filters.
func (r *Repository) ListIncidents(ctx context.Context, filters incidents.Filters) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filters.ChantierID != "" {
		query += fmt.Sprintf(" AND chantier_id = $%d", argNum)
		args = append(args, filters.ChantierID)
		argNum++
	}
	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filters.Status)
		argNum++
	}
	if filters.Priority != nil {
		query += fmt.Sprintf(" AND priority = $%d", argNum)
		args = append(args, *filters.Priority)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	return r.queryIncidents(ctx, query, args...)
}

// ListActiveIncidents retrieves open and in-progress incidents, oldest first.
func (r *Repository) ListActiveIncidents(ctx context.Context, chantierID string) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status IN ('open', 'in_progress')`
	args := []interface{}{}

	if chantierID != "" {
		query += " AND chantier_id = $1"
		args = append(args, chantierID)
	}
	query += " ORDER BY created_at ASC"

	return r.queryIncidents(ctx, query, args...)
}

func (r *Repository) queryIncidents(ctx context.Context, query string, args ...interface{}) ([]*domain.Incident, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, inc)
	}
	return list, rows.Err()
}

// guardedUpdate runs a transition update and maps a missed precondition to
// the conflict sentinel the service layer resolves.
func (r *Repository) guardedUpdate(ctx context.Context, query string, args ...interface{}) (*domain.Incident, error) {
	inc, err := scanIncident(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrStatusConflict
		}
		return nil, fmt.Errorf("transition incident: %w", err)
	}
	return inc, nil
}

// SetInProgress moves an open incident to in_progress.
func (r *Repository) SetInProgress(ctx context.Context, id string, at time.Time) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET status = 'in_progress', updated_at = $2
		WHERE id = $1 AND status = 'open'
		RETURNING ` + incidentColumns
	return r.guardedUpdate(ctx, query, id, at)
}

// AssignIncident sets the assignee; an open incident implicitly moves to
// in_progress, an in-progress one keeps its status.
func (r *Repository) AssignIncident(ctx context.Context, id, userID string, at time.Time) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET assigned_to = $2,
		    status = CASE WHEN status = 'open' THEN 'in_progress' ELSE status END,
		    updated_at = $3
		WHERE id = $1 AND status IN ('open', 'in_progress')
		RETURNING ` + incidentColumns
	return r.guardedUpdate(ctx, query, id, userID, at)
}

// MarkResolved resolves an open or in-progress incident.
func (r *Repository) MarkResolved(ctx context.Context, id, comment string, at time.Time) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET status = 'resolved', resolution_comment = $2, resolved_at = $3, updated_at = $3
		WHERE id = $1 AND status IN ('open', 'in_progress')
		RETURNING ` + incidentColumns
	return r.guardedUpdate(ctx, query, id, comment, at)
}

// CloseIncident closes a resolved incident.
func (r *Repository) CloseIncident(ctx context.Context, id string, at time.Time) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET status = 'closed', closed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'resolved'
		RETURNING ` + incidentColumns
	return r.guardedUpdate(ctx, query, id, at)
}

// ReopenIncident reopens a closed incident, clearing resolution state and
// the escalation history of the previous cycle. created_at is untouched:
// the SLA clock keeps its original anchor.
func (r *Repository) ReopenIncident(ctx context.Context, id string, at time.Time) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET status = 'open', resolved_at = NULL, closed_at = NULL,
		    resolution_comment = '', escalation_count = 0,
		    last_escalated_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'closed'
		RETURNING ` + incidentColumns
	return r.guardedUpdate(ctx, query, id, at)
}

// RecordEscalation bumps escalation_count when it still equals expectedCount
// and the incident is still active.
func (r *Repository) RecordEscalation(ctx context.Context, id string, expectedCount int, at time.Time) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET escalation_count = escalation_count + 1, last_escalated_at = $3, updated_at = $3
		WHERE id = $1 AND escalation_count = $2 AND status IN ('open', 'in_progress')
		RETURNING ` + incidentColumns
	return r.guardedUpdate(ctx, query, id, expectedCount, at)
}

// AddResponse inserts a response and bumps the incident's response_count in
// one transaction.
func (r *Repository) AddResponse(ctx context.Context, resp *domain.Response) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO incident_responses (incident_id, content, photo_url, is_resolution, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query,
		resp.IncidentID,
		resp.Content,
		resp.PhotoURL,
		resp.IsResolution,
		resp.CreatedBy,
	).Scan(&resp.ID, &resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create response: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE incidents SET response_count = response_count + 1, updated_at = now() WHERE id = $1`,
		resp.IncidentID,
	)
	if err != nil {
		return fmt.Errorf("bump response count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListResponses retrieves all responses of an incident, oldest first.
func (r *Repository) ListResponses(ctx context.Context, incidentID string) ([]*domain.Response, error) {
	query := `
		SELECT id, incident_id, content, photo_url, is_resolution, created_by, created_at
		FROM incident_responses
		WHERE incident_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Response, 0)
	for rows.Next() {
		var resp domain.Response
		err := rows.Scan(
			&resp.ID,
			&resp.IncidentID,
			&resp.Content,
			&resp.PhotoURL,
			&resp.IsResolution,
			&resp.CreatedBy,
			&resp.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		list = append(list, &resp)
	}
	return list, rows.Err()
}

// statsWhere builds the shared WHERE clause for aggregate queries.
func statsWhere(filter stats.Filter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.ChantierID != "" {
		where += fmt.Sprintf(" AND chantier_id = $%d", argNum)
		args = append(args, filter.ChantierID)
		argNum++
	}
	if filter.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, *filter.From)
		argNum++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argNum)
		args = append(args, *filter.To)
	}

	return where, args
}

// CountsByStatus returns incident counts grouped by status.
func (r *Repository) CountsByStatus(ctx context.Context, filter stats.Filter) (map[domain.IncidentStatus]int, error) {
	where, args := statsWhere(filter)
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM incidents`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.IncidentStatus]int)
	for rows.Next() {
		var status domain.IncidentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CountsByPriority returns incident counts grouped by priority.
func (r *Repository) CountsByPriority(ctx context.Context, filter stats.Filter) (map[domain.IncidentPriority]int, error) {
	where, args := statsWhere(filter)
	rows, err := r.db.Query(ctx, `SELECT priority, COUNT(*) FROM incidents`+where+` GROUP BY priority`, args...)
	if err != nil {
		return nil, fmt.Errorf("count by priority: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.IncidentPriority]int)
	for rows.Next() {
		var priority domain.IncidentPriority
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("scan priority count: %w", err)
		}
		counts[priority] = count
	}
	return counts, rows.Err()
}

// CountResolvedSince counts incidents whose resolved_at falls after the
// given instant.
func (r *Repository) CountResolvedSince(ctx context.Context, filter stats.Filter, since time.Time) (int, error) {
	where, args := statsWhere(filter)
	args = append(args, since)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM incidents%s AND resolved_at >= $%d`, where, len(args))

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count resolved since: %w", err)
	}
	return count, nil
}

// MeanResolutionHours averages resolved_at - created_at in hours over all
// incidents that have ever reached resolved. Returns nil when none have.
func (r *Repository) MeanResolutionHours(ctx context.Context, filter stats.Filter) (*float64, error) {
	where, args := statsWhere(filter)
	query := `
		SELECT AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600.0)
		FROM incidents` + where + ` AND resolved_at IS NOT NULL`

	var mean *float64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&mean); err != nil {
		return nil, fmt.Errorf("mean resolution hours: %w", err)
	}
	return mean, nil
}
