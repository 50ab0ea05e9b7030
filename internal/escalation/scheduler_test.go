package escalation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chantierops/signalement/internal/config"
	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/incidents"
	"github.com/chantierops/signalement/internal/pkg/clock"
	"github.com/chantierops/signalement/internal/sla"
)

type mockRepository struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
}

func newMockRepository() *mockRepository {
	return &mockRepository{incidents: make(map[string]*domain.Incident)}
}

func (m *mockRepository) add(inc *domain.Incident) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.ID] = inc
}

func (m *mockRepository) ListActiveIncidents(_ context.Context, _ string) ([]*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*domain.Incident
	for _, inc := range m.incidents {
		if inc.Status.IsActive() {
			copied := *inc
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (m *mockRepository) RecordEscalation(_ context.Context, id string, expectedCount int, at time.Time) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	if !inc.Status.IsActive() || inc.EscalationCount != expectedCount {
		return nil, incidents.ErrStatusConflict
	}
	inc.EscalationCount++
	escalatedAt := at
	inc.LastEscalatedAt = &escalatedAt
	copied := *inc
	return &copied, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *captureEmitter) Emit(_ context.Context, event domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *captureEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func testScheduler(repo Repository, emitter EventEmitter, clk clock.Clock) *Scheduler {
	cfg := config.EscalationConfig{
		Enabled:    true,
		Interval:   time.Minute,
		MaxRepeats: 5,
		RunBudget:  time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(cfg, repo, emitter, clk, logger)
}

func activeIncident(priority domain.IncidentPriority, createdAt time.Time) *domain.Incident {
	return &domain.Incident{
		ID:         uuid.NewString(),
		ChantierID: "chantier-7",
		Title:      "fuite hydraulique grue",
		Priority:   priority,
		Status:     domain.IncidentStatusOpen,
		CreatedBy:  "user-1",
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestRunOnceEscalatesOverdueIncident(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	repo := newMockRepository()
	emitter := &captureEmitter{}

	// Critical window is 4h; created 5h ago means overdue.
	inc := activeIncident(domain.PriorityCritical, now.Add(-5*time.Hour))
	repo.add(inc)

	s := testScheduler(repo, emitter, clk)
	s.RunOnce(context.Background())

	require.Equal(t, 1, emitter.count())
	event := emitter.events[0]
	assert.Equal(t, domain.EventIncidentEscalated, event.Type)
	assert.Equal(t, inc.ID, event.IncidentID)
	assert.Equal(t, "chantier-7", event.ChantierID)
	assert.Equal(t, 1, event.Data["escalation_count"])
	assert.Greater(t, event.Data["elapsed_percent"].(float64), 100.0)
}

func TestRunOnceIgnoresIncidentsWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	emitter := &captureEmitter{}

	repo.add(activeIncident(domain.PriorityCritical, now.Add(-3*time.Hour)))
	repo.add(activeIncident(domain.PriorityLow, now.Add(-48*time.Hour)))

	s := testScheduler(repo, emitter, clock.NewFixed(now))
	s.RunOnce(context.Background())

	assert.Zero(t, emitter.count())
}

func TestRepeatEscalationsWidenCooldown(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	repo := newMockRepository()
	emitter := &captureEmitter{}

	inc := activeIncident(domain.PriorityCritical, now.Add(-5*time.Hour))
	repo.add(inc)
	s := testScheduler(repo, emitter, clk)

	// Immediate re-runs must not re-escalate: only the first fires.
	for i := 0; i < 10; i++ {
		s.RunOnce(context.Background())
	}
	assert.Equal(t, 1, emitter.count())

	// Second escalation fires one full window after the first.
	clk.Advance(4 * time.Hour)
	s.RunOnce(context.Background())
	assert.Equal(t, 2, emitter.count())

	// Third now needs two windows; one is not enough.
	clk.Advance(4 * time.Hour)
	s.RunOnce(context.Background())
	assert.Equal(t, 2, emitter.count())

	clk.Advance(4 * time.Hour)
	s.RunOnce(context.Background())
	assert.Equal(t, 3, emitter.count())
}

func TestEscalationsCapAtMaxRepeats(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	repo := newMockRepository()
	emitter := &captureEmitter{}

	inc := activeIncident(domain.PriorityCritical, now.Add(-5*time.Hour))
	repo.add(inc)
	s := testScheduler(repo, emitter, clk)

	// Advance far past every widening cooldown between runs.
	for i := 0; i < 20; i++ {
		s.RunOnce(context.Background())
		clk.Advance(100 * time.Hour)
	}

	assert.Equal(t, 5, emitter.count())
	got := repo.incidents[inc.ID]
	assert.Equal(t, 5, got.EscalationCount)
}

func TestConcurrentTransitionSuppressesEvent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	emitter := &captureEmitter{}

	inc := activeIncident(domain.PriorityHigh, now.Add(-30*time.Hour))
	// Simulate another run having already escalated after our snapshot.
	inc.EscalationCount = 1
	escalatedAt := now.Add(-time.Minute)
	inc.LastEscalatedAt = &escalatedAt
	repo.add(inc)

	s := testScheduler(repo, emitter, clock.NewFixed(now))

	stale := *inc
	stale.EscalationCount = 0
	stale.LastEscalatedAt = nil
	reading := sla.Evaluate(&stale, now)
	assert.False(t, s.escalate(context.Background(), &stale, reading, now))
	assert.Zero(t, emitter.count())
}

func TestStartDisabledIsNoop(t *testing.T) {
	repo := newMockRepository()
	emitter := &captureEmitter{}

	cfg := config.EscalationConfig{Enabled: false, Interval: time.Millisecond, MaxRepeats: 5, RunBudget: time.Minute}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(cfg, repo, emitter, clock.System{}, logger)

	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	assert.Zero(t, emitter.count())
}
