// Package sla computes service-level-agreement readings for incidents.
//
// The calculator is pure: the same (priority, created_at, now, status) input
// always yields the same reading and nothing is ever written. Malformed
// priorities are rejected upstream by incident validation and never reach
// this package.
package sla

import (
	"fmt"
	"time"

	"github.com/chantierops/signalement/internal/domain"
)

// DeadlinePassed is the remaining-time sentinel for breached incidents.
const DeadlinePassed = "deadline passed"

// Reading is a point-in-time SLA evaluation of one incident.
type Reading struct {
	// ElapsedPercent is elapsed time over the SLA window as a percentage.
	// It is unbounded above and exceeds 100 once the deadline is breached.
	ElapsedPercent float64 `json:"elapsed_percent"`
	// Remaining is a human-readable remaining-time string, or DeadlinePassed.
	Remaining string `json:"time_remaining"`
	// Overdue is true when the deadline has been reached and the incident
	// is still open or in progress.
	Overdue bool `json:"overdue"`
	// Window is the SLA window fixed at creation from the priority.
	Window time.Duration `json:"-"`
}

// Evaluate computes the SLA reading for an incident at the given instant.
//
// Resolved and closed incidents read frozen at the timestamp the terminal
// state was reached, so a closed incident never re-breaches as wall time
// advances.
func Evaluate(inc *domain.Incident, now time.Time) Reading {
	window := inc.Priority.SLAWindow()

	ref := now
	if !inc.Status.IsActive() {
		ref = frozenReference(inc, now)
	}

	elapsed := ref.Sub(inc.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	pct := float64(elapsed) / float64(window) * 100

	r := Reading{
		ElapsedPercent: pct,
		Window:         window,
	}

	if pct >= 100 {
		r.Remaining = DeadlinePassed
		r.Overdue = inc.Status.IsActive()
		return r
	}

	r.Remaining = formatRemaining(window - elapsed)
	return r
}

// Deadline returns the instant at which an incident breaches its SLA.
func Deadline(inc *domain.Incident) time.Time {
	return inc.CreatedAt.Add(inc.Priority.SLAWindow())
}

// frozenReference picks the timestamp the terminal state was reached.
func frozenReference(inc *domain.Incident, now time.Time) time.Time {
	if inc.Status == domain.IncidentStatusClosed && inc.ClosedAt != nil {
		return *inc.ClosedAt
	}
	if inc.ResolvedAt != nil {
		return *inc.ResolvedAt
	}
	return now
}

// formatRemaining renders a duration as "3h 59m" or "45m" for sub-hour values.
func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", h, m)
}
