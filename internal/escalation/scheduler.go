// Package escalation runs the background scan that detects overdue incidents
// and fires escalation events for them.
package escalation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chantierops/signalement/internal/config"
	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/incidents"
	"github.com/chantierops/signalement/internal/pkg/clock"
	"github.com/chantierops/signalement/internal/sla"
)

// Repository is the slice of incident storage the scheduler needs.
type Repository interface {
	ListActiveIncidents(ctx context.Context, chantierID string) ([]*domain.Incident, error)
	RecordEscalation(ctx context.Context, id string, expectedCount int, at time.Time) (*domain.Incident, error)
}

// EventEmitter receives escalation events for fan-out.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.Event)
}

// Scheduler periodically scans active incidents and escalates the overdue
// ones. Escalations repeat with a widening cooldown: after the Nth
// escalation the next one fires no sooner than N full SLA windows later,
// and the repeat count is capped so a stuck incident eventually goes quiet.
type Scheduler struct {
	repo    Repository
	emitter EventEmitter
	clock   clock.Clock
	cfg     config.EscalationConfig
	logger  *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewScheduler creates an escalation scheduler.
func NewScheduler(cfg config.EscalationConfig, repo Repository, emitter EventEmitter, clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		repo:    repo,
		emitter: emitter,
		clock:   clk,
		cfg:     cfg,
		logger:  logger.With("component", "escalation"),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the scan loop. It is a no-op when escalation is disabled.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.logger.Info("escalation disabled")
		return
	}
	s.logger.Info("starting escalation scheduler",
		"interval", s.cfg.Interval, "max_repeats", s.cfg.MaxRepeats)

	s.wg.Add(1)
	go s.loop()
}

// Stop halts the loop and waits for an in-flight scan to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single scan. Overlapping runs are skipped rather than
// queued, and each run is bounded by the configured budget so a large backlog
// degrades to partial progress instead of blocking forever.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		runsSkipped.Inc()
		s.logger.Warn("previous escalation run still in flight, skipping")
		return
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunBudget)
	defer cancel()

	start := time.Now()
	now := s.clock.Now()

	active, err := s.repo.ListActiveIncidents(ctx, "")
	if err != nil {
		s.logger.Error("failed to list active incidents", "error", err)
		return
	}

	var overdue, escalated int
	for _, inc := range active {
		if ctx.Err() != nil {
			s.logger.Warn("escalation run budget exhausted",
				"escalated", escalated, "active", len(active))
			break
		}

		reading := sla.Evaluate(inc, now)
		if !reading.Overdue {
			continue
		}
		overdue++

		if !s.due(inc, reading, now) {
			continue
		}
		if s.escalate(ctx, inc, reading, now) {
			escalated++
		}
	}

	overdueIncidents.Set(float64(overdue))
	runsTotal.Inc()
	runDuration.Observe(time.Since(start).Seconds())

	if escalated > 0 {
		s.logger.Info("escalation run complete",
			"active", len(active), "overdue", overdue, "escalated", escalated)
	}
}

// due decides whether an overdue incident gets another escalation now.
func (s *Scheduler) due(inc *domain.Incident, reading sla.Reading, now time.Time) bool {
	if inc.EscalationCount >= s.cfg.MaxRepeats {
		return false
	}
	if inc.EscalationCount == 0 || inc.LastEscalatedAt == nil {
		return true
	}
	// Widening cooldown: wait EscalationCount full windows after the last one.
	next := inc.LastEscalatedAt.Add(time.Duration(inc.EscalationCount) * reading.Window)
	return !now.Before(next)
}

// escalate records the escalation and emits the event. The guarded update
// makes concurrent transitions safe: if the incident moved or another run
// already escalated it, the write is a no-op and no event fires.
func (s *Scheduler) escalate(ctx context.Context, inc *domain.Incident, reading sla.Reading, now time.Time) bool {
	updated, err := s.repo.RecordEscalation(ctx, inc.ID, inc.EscalationCount, now)
	if errors.Is(err, incidents.ErrStatusConflict) {
		return false
	}
	if err != nil {
		// One broken incident must not starve the rest of the scan.
		s.logger.Error("failed to record escalation", "incident_id", inc.ID, "error", err)
		return false
	}

	escalationsTotal.WithLabelValues(string(updated.Priority)).Inc()
	s.logger.Warn("incident escalated",
		"incident_id", updated.ID,
		"chantier_id", updated.ChantierID,
		"priority", updated.Priority,
		"escalation_count", updated.EscalationCount,
		"elapsed_percent", reading.ElapsedPercent)

	s.emitter.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventIncidentEscalated,
		IncidentID: updated.ID,
		ChantierID: updated.ChantierID,
		Status:     updated.Status,
		Timestamp:  now,
		Data: map[string]any{
			"priority":         updated.Priority,
			"escalation_count": updated.EscalationCount,
			"elapsed_percent":  reading.ElapsedPercent,
			"assigned_to":      updated.AssignedTo,
		},
	})
	return true
}
