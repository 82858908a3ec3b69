// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name   string
	result CheckResult
}

func (s stubChecker) Name() string { return s.name }

func (s stubChecker) Check(context.Context) CheckResult { return s.result }

func TestHealthAlwaysOK(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(stubChecker{"broken", CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHealthVerboseIncludesChecks(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(stubChecker{"degraded", CheckResult{Status: StatusDegraded}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 1)
}

func TestReadyAggregation(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantReady  bool
		wantStatus Status
		wantCode   int
	}{
		{"no checkers", nil, true, StatusHealthy, http.StatusOK},
		{"degraded keeps serving", []Checker{
			stubChecker{"a", CheckResult{Status: StatusHealthy}},
			stubChecker{"b", CheckResult{Status: StatusDegraded}},
		}, true, StatusDegraded, http.StatusOK},
		{"unhealthy fails readiness", []Checker{
			stubChecker{"a", CheckResult{Status: StatusDegraded}},
			stubChecker{"b", CheckResult{Status: StatusUnhealthy}},
		}, false, StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}

			rec := httptest.NewRecorder()
			m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestDirChecker(t *testing.T) {
	ok := NewDirChecker("data", t.TempDir())
	assert.Equal(t, StatusHealthy, ok.Check(t.Context()).Status)

	missing := NewDirChecker("data", "/does/not/exist")
	assert.Equal(t, StatusUnhealthy, missing.Check(t.Context()).Status)
}

func TestEndpointChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reachable := NewEndpointChecker("probe", srv.URL, true)
	assert.Equal(t, StatusHealthy, reachable.Check(t.Context()).Status)

	unconfigured := NewEndpointChecker("cast", "", true)
	assert.Equal(t, StatusHealthy, unconfigured.Check(t.Context()).Status)

	srv.Close()
	down := NewEndpointChecker("probe", srv.URL, true)
	assert.Equal(t, StatusDegraded, down.Check(t.Context()).Status)

	required := NewEndpointChecker("probe", srv.URL, false)
	assert.Equal(t, StatusUnhealthy, required.Check(t.Context()).Status)
}
