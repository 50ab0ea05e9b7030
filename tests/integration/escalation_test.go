//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getIncident(t *testing.T, id string) incidentPayload {
	t.Helper()

	c := authedClient(t, "user-1")
	resp, err := c.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var inc incidentPayload
	decodeData(t, resp, &inc)
	return inc
}

func TestEscalationMarksOverdueIncident(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-escalation", "Fuite hydraulique sur la grue", "critical")
	backdateIncident(t, inc.ID, 5*time.Hour) // critical window is 4h

	application.Scheduler().RunOnce(t.Context())

	got := getIncident(t, inc.ID)
	assert.Equal(t, 1, got.EscalationCount)

	// A second run inside the cooldown leaves the count untouched.
	application.Scheduler().RunOnce(t.Context())
	got = getIncident(t, inc.ID)
	assert.Equal(t, 1, got.EscalationCount)
}

func TestEscalationSkipsIncidentsWithinWindow(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-escalation", "Casque manquant au vestiaire", "low")

	application.Scheduler().RunOnce(t.Context())

	got := getIncident(t, inc.ID)
	assert.Zero(t, got.EscalationCount)
}

func TestEscalationIgnoresResolvedIncidents(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-escalation", "Banche mal fixée", "critical")

	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/resolve", map[string]interface{}{
		"comment": "banche resserrée et contrôlée",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	_ = resp.Body.Close()

	backdateIncident(t, inc.ID, 10*time.Hour)
	application.Scheduler().RunOnce(t.Context())

	got := getIncident(t, inc.ID)
	assert.Zero(t, got.EscalationCount)
	assert.Equal(t, "resolved", got.Status)
}

func TestReopenResetsEscalationCount(t *testing.T) {
	c := authedClient(t, "user-1")

	inc := reportIncident(t, c, "chantier-escalation", "Garde-corps absent en R+2", "critical")
	backdateIncident(t, inc.ID, 5*time.Hour)

	application.Scheduler().RunOnce(t.Context())
	require.Equal(t, 1, getIncident(t, inc.ID).EscalationCount)

	resp, err := c.POST("/api/v1/incidents/"+inc.ID+"/resolve", map[string]interface{}{
		"comment": "garde-corps posé",
	})
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	_ = resp.Body.Close()

	resp, err = c.POST("/api/v1/incidents/"+inc.ID+"/close", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	_ = resp.Body.Close()

	resp, err = c.POST("/api/v1/incidents/"+inc.ID+"/reopen", nil)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)
	var reopened incidentPayload
	decodeData(t, resp, &reopened)

	assert.Equal(t, "open", reopened.Status)
	assert.Zero(t, reopened.EscalationCount)
}
