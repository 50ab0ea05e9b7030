//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	resp, err := testClient.GET("/api/v1/incidents/overdue")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusUnauthorized)
}

func TestRequestsWithGarbageTokenAreRejected(t *testing.T) {
	resp, err := testClient.As("not-a-token").GET("/api/v1/incidents/overdue")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusUnauthorized)
}

func TestRequestsWithExpiredTokenAreRejected(t *testing.T) {
	token, err := tokens.IssueToken("user-1", -time.Minute)
	require.NoError(t, err)

	resp, err := testClient.As(token).GET("/api/v1/incidents/overdue")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusUnauthorized)
}

func TestHealthEndpointsNeedNoAuth(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		resp, err := testClient.GET(path)
		require.NoError(t, err)
		requireStatus(t, resp, http.StatusOK)
	}
}

func TestTokenSubjectBecomesCreatedBy(t *testing.T) {
	c := authedClient(t, "chef-martin")

	inc := reportIncident(t, c, "chantier-auth", "Garde-corps manquant", "medium")
	require.Equal(t, "chef-martin", inc.CreatedBy)
}
