// Package stats derives cross-cutting incident metrics. It is a pure
// read-side of the incident store: every request recomputes from current
// state, nothing is cached or persisted.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/pkg/clock"
	"github.com/chantierops/signalement/internal/sla"
)

// Filter scopes an aggregation to a chantier and/or creation date range.
type Filter struct {
	ChantierID string
	From       *time.Time
	To         *time.Time
}

// Repository is the read-side slice of incident storage the aggregator needs.
type Repository interface {
	CountsByStatus(ctx context.Context, filter Filter) (map[domain.IncidentStatus]int, error)
	CountsByPriority(ctx context.Context, filter Filter) (map[domain.IncidentPriority]int, error)
	CountResolvedSince(ctx context.Context, filter Filter, since time.Time) (int, error)
	MeanResolutionHours(ctx context.Context, filter Filter) (*float64, error)
	ListActiveIncidents(ctx context.Context, chantierID string) ([]*domain.Incident, error)
}

// Summary is the aggregate view over the incident store.
type Summary struct {
	Total               int                             `json:"total"`
	ByStatus            map[domain.IncidentStatus]int   `json:"by_status"`
	ByPriority          map[domain.IncidentPriority]int `json:"by_priority"`
	OverdueCount        int                             `json:"overdue_count"`
	ResolvedThisWeek    int                             `json:"resolved_this_week"`
	MeanResolutionHours *float64                        `json:"mean_resolution_hours"`
	ResolutionRate      float64                         `json:"resolution_rate"`
}

// Service computes incident statistics on demand.
type Service struct {
	repo  Repository
	clock clock.Clock
}

// NewService creates a new statistics service.
func NewService(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clock: clk}
}

// Summarize computes the aggregate view for the given filter.
func (s *Service) Summarize(ctx context.Context, filter Filter) (*Summary, error) {
	byStatus, err := s.repo.CountsByStatus(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counts by status: %w", err)
	}

	byPriority, err := s.repo.CountsByPriority(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counts by priority: %w", err)
	}

	now := s.clock.Now()

	resolvedThisWeek, err := s.repo.CountResolvedSince(ctx, filter, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("resolved this week: %w", err)
	}

	meanHours, err := s.repo.MeanResolutionHours(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mean resolution time: %w", err)
	}

	active, err := s.repo.ListActiveIncidents(ctx, filter.ChantierID)
	if err != nil {
		return nil, fmt.Errorf("list active incidents: %w", err)
	}

	// The active-incident query is shared with the escalation scheduler and
	// carries no date bounds, so the range filter is applied here.
	overdue := 0
	for _, inc := range active {
		if filter.From != nil && inc.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && inc.CreatedAt.After(*filter.To) {
			continue
		}
		if sla.Evaluate(inc, now).Overdue {
			overdue++
		}
	}

	total := 0
	for _, count := range byStatus {
		total += count
	}

	summary := &Summary{
		Total:               total,
		ByStatus:            byStatus,
		ByPriority:          byPriority,
		OverdueCount:        overdue,
		ResolvedThisWeek:    resolvedThisWeek,
		MeanResolutionHours: meanHours,
	}

	if total > 0 {
		settled := byStatus[domain.IncidentStatusResolved] + byStatus[domain.IncidentStatusClosed]
		summary.ResolutionRate = float64(settled) / float64(total) * 100
	}

	return summary, nil
}
