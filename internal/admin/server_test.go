package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(localSIDs, policies int) *Server {
	return NewServer(":0", func() int { return localSIDs }, func() int { return policies }, zap.NewNop())
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	s := newTestServer(0, 0)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotEmpty(t, body["status"])
	}
}

func TestStatsAndTablesReportConfiguredCounts(t *testing.T) {
	s := newTestServer(3, 1)

	for _, path := range []string{"/stats", "/tables"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var stats TableStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		require.Equal(t, 3, stats.LocalSIDs)
		require.Equal(t, 1, stats.Policies)
	}
}

func TestMetricsEndpointIsRegistered(t *testing.T) {
	s := newTestServer(0, 0)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	s := newTestServer(0, 0)
	require.NoError(t, s.Stop())
}
