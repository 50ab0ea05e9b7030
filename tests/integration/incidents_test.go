//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentLifecycle(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-lifecycle", "Fissure dalle niveau 2", "high")
	assert.Equal(t, "open", inc.Status)
	assert.False(t, inc.SLA.Overdue)
	assert.NotEqual(t, "deadline passed", inc.SLA.TimeRemaining)

	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/start", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var started incidentPayload
	decodeData(t, resp, &started)
	assert.Equal(t, "in_progress", started.Status)

	resp, err = c.POST("/api/v1/incidents/"+inc.ID+"/resolve", map[string]string{
		"comment": "dalle reprise, ferraillage complété",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var resolved incidentPayload
	decodeData(t, resp, &resolved)
	assert.Equal(t, "resolved", resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, 1, resolved.ResponseCount)

	resp, err = c.POST("/api/v1/incidents/"+inc.ID+"/close", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var closed incidentPayload
	decodeData(t, resp, &closed)
	assert.Equal(t, "closed", closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	resp, err = c.POST("/api/v1/incidents/"+inc.ID+"/reopen", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var reopened incidentPayload
	decodeData(t, resp, &reopened)
	assert.Equal(t, "open", reopened.Status)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Nil(t, reopened.ClosedAt)
	assert.Empty(t, reopened.ResolutionComment)
	assert.Zero(t, reopened.EscalationCount)
	assert.Equal(t, inc.CreatedAt, reopened.CreatedAt)
}

func TestIllegalTransitionsReturnConflict(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-conflict", "Coffrage déformé", "medium")

	// Closing an open incident skips resolved.
	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/close", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusConflict)

	// Reopening a non-closed incident.
	resp, err = c.POST("/api/v1/incidents/"+inc.ID+"/reopen", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusConflict)
}

func TestCreateIncidentValidation(t *testing.T) {
	c := authedClient(t, "user-1")

	resp, err := c.POST("/api/v1/incidents", map[string]string{
		"chantier_id": "chantier-1", "title": "", "priority": "high",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusBadRequest)

	resp, err = c.POST("/api/v1/incidents", map[string]string{
		"chantier_id": "chantier-1", "title": "ok", "priority": "urgent",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusBadRequest)

	resp, err = c.POST("/api/v1/incidents", map[string]string{
		"chantier_id": "chantier-1", "title": "ok", "priority": "high",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusCreated)
	_ = resp.Body.Close()
}

func TestResolveRequiresComment(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-comment", "Échelle non conforme", "low")

	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/resolve", map[string]string{"comment": ""})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestAssignMovesOpenToInProgress(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-assign", "Benne pleine non évacuée", "low")

	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/assign", map[string]string{"user_id": "chef-simone"})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var assigned incidentPayload
	decodeData(t, resp, &assigned)
	assert.Equal(t, "in_progress", assigned.Status)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, "chef-simone", *assigned.AssignedTo)
}

func TestListIncidentsByChantierWithFilters(t *testing.T) {
	c := authedClient(t, "user-1")
	chantier := fmt.Sprintf("chantier-list-%d", time.Now().UnixNano())

	reportIncident(t, c, chantier, "Incident un", "high")
	inc2 := reportIncident(t, c, chantier, "Incident deux", "low")

	resp, err := c.POST("/api/v1/incidents/"+inc2.ID+"/start", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	_ = resp.Body.Close()

	resp, err = c.GET("/api/v1/chantiers/" + chantier + "/incidents")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var all []incidentPayload
	decodeData(t, resp, &all)
	assert.Len(t, all, 2)

	resp, err = c.GET("/api/v1/chantiers/" + chantier + "/incidents?status=in_progress")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var inProgress []incidentPayload
	decodeData(t, resp, &inProgress)
	require.Len(t, inProgress, 1)
	assert.Equal(t, inc2.ID, inProgress[0].ID)

	resp, err = c.GET("/api/v1/chantiers/" + chantier + "/incidents?priority=high")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var high []incidentPayload
	decodeData(t, resp, &high)
	require.Len(t, high, 1)
	assert.Equal(t, "Incident un", high[0].Title)

	resp, err = c.GET("/api/v1/chantiers/" + chantier + "/incidents?status=bogus")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestSearchIgnoresAccents(t *testing.T) {
	c := authedClient(t, "user-1")
	chantier := fmt.Sprintf("chantier-search-%d", time.Now().UnixNano())

	reportIncident(t, c, chantier, "Bétonnière hors service", "medium")
	reportIncident(t, c, chantier, "Grue à vérifier", "low")

	resp, err := c.GET("/api/v1/incidents/search?q=betonniere&chantier_id=" + chantier)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var found []incidentPayload
	decodeData(t, resp, &found)
	require.Len(t, found, 1)
	assert.Equal(t, "Bétonnière hors service", found[0].Title)
}

func TestOverdueListing(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-overdue", "Fuite hydraulique pelleteuse", "critical")
	backdateIncident(t, inc.ID, 5*time.Hour)

	resp, err := c.GET("/api/v1/incidents/overdue")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var overdue []incidentPayload
	decodeData(t, resp, &overdue)

	var got *incidentPayload
	for i := range overdue {
		if overdue[i].ID == inc.ID {
			got = &overdue[i]
		}
	}
	require.NotNil(t, got, "backdated critical incident missing from overdue list")
	assert.True(t, got.SLA.Overdue)
	assert.Greater(t, got.SLA.ElapsedPercent, 100.0)
	assert.Equal(t, "deadline passed", got.SLA.TimeRemaining)
}

func TestResolvedIncidentFreezesSLA(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-freeze", "Tranchée non balisée", "critical")

	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/resolve", map[string]string{"comment": "balisage posé"})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	_ = resp.Body.Close()

	// Even far past the 4h window, the frozen reading stays below 100%.
	backdateIncident(t, inc.ID, 48*time.Hour)
	// resolved_at must move with created_at for the frozen reading to mean
	// anything here; re-resolving is illegal, so adjust it directly.
	_, err = testDB.Exec(t.Context(),
		`UPDATE incidents SET resolved_at = created_at + interval '1 hour' WHERE id = $1`, inc.ID)
	require.NoError(t, err)

	resp, err = c.GET("/api/v1/incidents/" + inc.ID)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var frozen incidentPayload
	decodeData(t, resp, &frozen)
	assert.False(t, frozen.SLA.Overdue)
	assert.InDelta(t, 25.0, frozen.SLA.ElapsedPercent, 1.0)
}

func TestIncidentResponses(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-responses", "Câble électrique dénudé", "high")

	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/responses", map[string]string{
		"content": "électricien prévenu, intervention demain matin",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusCreated)
	_ = resp.Body.Close()

	resp, err = c.GET("/api/v1/incidents/" + inc.ID + "/responses")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var responses []struct {
		Content      string `json:"content"`
		IsResolution bool   `json:"is_resolution"`
		CreatedBy    string `json:"created_by"`
	}
	decodeData(t, resp, &responses)
	require.Len(t, responses, 1)
	assert.Equal(t, "user-1", responses[0].CreatedBy)
	assert.False(t, responses[0].IsResolution)

	// Unknown incident.
	resp, err = c.GET("/api/v1/incidents/00000000-0000-0000-0000-000000000000/responses")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusNotFound)
}
