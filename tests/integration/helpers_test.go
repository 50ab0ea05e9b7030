//go:build integration

package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/chantierops/signalement/internal/testutil"
)

// incidentPayload mirrors the incident view returned by the API.
type incidentPayload struct {
	ID                string  `json:"id"`
	ChantierID        string  `json:"chantier_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Priority          string  `json:"priority"`
	Status            string  `json:"status"`
	CreatedBy         string  `json:"created_by"`
	AssignedTo        *string `json:"assigned_to"`
	ResolutionComment string  `json:"resolution_comment"`
	ResponseCount     int     `json:"response_count"`
	EscalationCount   int     `json:"escalation_count"`
	ResolvedAt        *string `json:"resolved_at"`
	ClosedAt          *string `json:"closed_at"`
	CreatedAt         string  `json:"created_at"`
	SLA               struct {
		ElapsedPercent float64 `json:"elapsed_percent"`
		TimeRemaining  string  `json:"time_remaining"`
		Overdue        bool    `json:"overdue"`
	} `json:"sla"`
}

type subscriptionPayload struct {
	ID                  string   `json:"id"`
	URL                 string   `json:"url"`
	EventPatterns       []string `json:"event_patterns"`
	Active              bool     `json:"active"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	Secret              string   `json:"secret"`
}

type deliveryPayload struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	Attempt        int    `json:"attempt"`
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code"`
}

type statsPayload struct {
	Total               int            `json:"total"`
	ByStatus            map[string]int `json:"by_status"`
	ByPriority          map[string]int `json:"by_priority"`
	OverdueCount        int            `json:"overdue_count"`
	ResolvedThisWeek    int            `json:"resolved_this_week"`
	MeanResolutionHours *float64       `json:"mean_resolution_hours"`
	ResolutionRate      float64        `json:"resolution_rate"`
}

// decodeData unwraps the {"data": ...} envelope into v.
func decodeData(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, body)
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("decode data: %v (body: %s)", err, body)
	}
}

// requireStatus fails the test unless the response carries the wanted code.
func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		t.Fatalf("unexpected status: got=%d want=%d body=%s", resp.StatusCode, want, body)
	}
}

// reportIncident creates an incident through the API and returns its view.
func reportIncident(t *testing.T, c *testutil.Client, chantierID, title, priority string) incidentPayload {
	t.Helper()

	resp, err := c.POST("/api/v1/incidents", map[string]interface{}{
		"chantier_id": chantierID,
		"title":       title,
		"priority":    priority,
	})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	requireStatus(t, resp, http.StatusCreated)

	var inc incidentPayload
	decodeData(t, resp, &inc)
	return inc
}

// backdateIncident rewrites created_at directly in the store so SLA and
// escalation behavior can be tested without waiting out real windows.
func backdateIncident(t *testing.T, id string, age time.Duration) {
	t.Helper()

	_, err := testDB.Exec(t.Context(),
		`UPDATE incidents SET created_at = now() - make_interval(secs => $2) WHERE id = $1`,
		id, age.Seconds())
	if err != nil {
		t.Fatalf("backdate incident: %v", err)
	}
}
