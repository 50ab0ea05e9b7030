package sla

import (
	"testing"
	"time"

	"github.com/chantierops/signalement/internal/domain"
	"github.com/stretchr/testify/assert"
)

func newIncident(priority domain.IncidentPriority, createdAt time.Time) *domain.Incident {
	return &domain.Incident{
		ID:        "inc-1",
		Priority:  priority,
		Status:    domain.IncidentStatusOpen,
		CreatedAt: createdAt,
	}
}

func TestSLAWindows(t *testing.T) {
	tests := []struct {
		priority domain.IncidentPriority
		window   time.Duration
	}{
		{domain.PriorityCritical, 4 * time.Hour},
		{domain.PriorityHigh, 24 * time.Hour},
		{domain.PriorityMedium, 48 * time.Hour},
		{domain.PriorityLow, 72 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.window, tt.priority.SLAWindow())
		})
	}
}

func TestEvaluate_ExactDeadline(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	for _, priority := range []domain.IncidentPriority{
		domain.PriorityCritical, domain.PriorityHigh,
		domain.PriorityMedium, domain.PriorityLow,
	} {
		t.Run(string(priority), func(t *testing.T) {
			inc := newIncident(priority, t0)
			window := priority.SLAWindow()

			// Just before the deadline: not overdue.
			before := Evaluate(inc, t0.Add(window-time.Second))
			assert.False(t, before.Overdue)
			assert.Less(t, before.ElapsedPercent, 100.0)

			// Exactly at the deadline: 100% and overdue.
			at := Evaluate(inc, t0.Add(window))
			assert.Equal(t, 100.0, at.ElapsedPercent)
			assert.True(t, at.Overdue)
			assert.Equal(t, DeadlinePassed, at.Remaining)
		})
	}
}

func TestEvaluate_CriticalScenario(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	inc := newIncident(domain.PriorityCritical, t0)

	// T0+3h59m: approximately 99.6%, not yet overdue.
	r := Evaluate(inc, t0.Add(3*time.Hour+59*time.Minute))
	assert.False(t, r.Overdue)
	assert.InDelta(t, 99.58, r.ElapsedPercent, 0.05)
	assert.NotEqual(t, DeadlinePassed, r.Remaining)

	// T0+4h00m01s with status still open: overdue.
	r = Evaluate(inc, t0.Add(4*time.Hour+time.Second))
	assert.True(t, r.Overdue)
	assert.Greater(t, r.ElapsedPercent, 100.0)
}

func TestEvaluate_ExceedsHundredPercent(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	inc := newIncident(domain.PriorityCritical, t0)

	r := Evaluate(inc, t0.Add(8*time.Hour))
	assert.InDelta(t, 200.0, r.ElapsedPercent, 0.01)
	assert.True(t, r.Overdue)
}

func TestEvaluate_FrozenOnResolved(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	resolvedAt := t0.Add(10 * time.Hour)

	inc := newIncident(domain.PriorityLow, t0)
	inc.Status = domain.IncidentStatusResolved
	inc.ResolvedAt = &resolvedAt

	// 10h of a 72h window is ~13.9%, frozen regardless of further time passing.
	for _, now := range []time.Time{
		resolvedAt,
		resolvedAt.Add(24 * time.Hour),
		resolvedAt.Add(30 * 24 * time.Hour),
	} {
		r := Evaluate(inc, now)
		assert.InDelta(t, 13.9, r.ElapsedPercent, 0.05)
		assert.False(t, r.Overdue)
	}
}

func TestEvaluate_ClosedNeverRebreaches(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	resolvedAt := t0.Add(time.Hour)
	closedAt := t0.Add(2 * time.Hour)

	inc := newIncident(domain.PriorityCritical, t0)
	inc.Status = domain.IncidentStatusClosed
	inc.ResolvedAt = &resolvedAt
	inc.ClosedAt = &closedAt

	r := Evaluate(inc, t0.Add(100*time.Hour))
	assert.InDelta(t, 50.0, r.ElapsedPercent, 0.01)
	assert.False(t, r.Overdue)
}

func TestEvaluate_Deterministic(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	inc := newIncident(domain.PriorityHigh, t0)
	inc.EscalationCount = 3

	now := t0.Add(30 * time.Hour)
	first := Evaluate(inc, now)
	second := Evaluate(inc, now)

	assert.Equal(t, first, second)
	assert.Equal(t, 3, inc.EscalationCount)
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{3*time.Hour + 59*time.Minute, "3h 59m"},
		{45 * time.Minute, "45m"},
		{72 * time.Hour, "72h 00m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatRemaining(tt.d))
	}
}
