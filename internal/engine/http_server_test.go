package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/idp-admin-gateway/internal/audit"
	"github.com/xela07ax/idp-admin-gateway/internal/infra/auth"
	"github.com/xela07ax/idp-admin-gateway/internal/repository/postgres"
)

func newHTTP(f *fixture, opts HTTPOptions) http.Handler {
	if opts.Auth == nil {
		opts.Auth = auth.NewHeaderMiddleware(zap.NewNop())
	}
	return NewHTTPServer(f.gateway, zap.NewNop(), opts)
}

func call(t *testing.T, h http.Handler, method, path, role, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(auth.HeaderCaller, "ops@example.com")
	req.Header.Set(auth.HeaderCallerRole, role)
	req.Header.Set(HeaderCorrelationID, "corr-http")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestSuspendFlowOverHTTP(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit-Remaining", "42")
		w.WriteHeader(http.StatusOK)
	})
	h := newHTTP(f, HTTPOptions{})

	// preview
	rec, out := call(t, h, http.MethodPost, "/v1/tools/suspend_user", "analyst", `{"userId":"00u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["result"].(map[string]interface{})["confirmationRequired"])
	assert.Empty(t, f.Hits())
	assert.Empty(t, f.sink.Records())

	// execute
	rec, out = call(t, h, http.MethodPost, "/v1/tools/suspend_user_confirm", "admin", `{"userId":"00u1","confirm":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-http", rec.Header().Get(HeaderCorrelationID))
	assert.Equal(t, map[string]interface{}{"ok": true, "message": "User 00u1 suspended successfully"}, out["result"])
	assert.Equal(t, []string{"POST /api/v1/users/00u1/lifecycle/suspend"}, f.Hits())

	records := f.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "corr-http", records[0].CorrelationID)
	assert.Equal(t, "ops@example.com", records[0].Caller)
	assert.Equal(t, "okta-req-1", records[0].OktaRequestID)

	metrics := f.scrape(t)
	assert.Contains(t, metrics, "idpgw_okta_rate_limit_remaining 42")
	assert.Contains(t, metrics, `idpgw_tool_invocations_total{outcome="ok",tool="suspend_user_confirm"} 1`)
}

func TestHTTPErrorMapping(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorCode":"E0000007","errorSummary":"Not found: Resource not found: 00u9 (User)"}`))
	})
	h := newHTTP(f, HTTPOptions{})

	tests := []struct {
		name, path, role, body string
		status                 int
		code                   string
	}{
		{"validation", "/v1/tools/get_user_by_email", "analyst", `{"email":"nope"}`, http.StatusBadRequest, "invalid_input"},
		{"missing confirm", "/v1/tools/deactivate_user_confirm", "admin", `{"userId":"00u9"}`, http.StatusBadRequest, "invalid_input"},
		{"forbidden", "/v1/tools/deactivate_user_confirm", "helpdesk", `{"userId":"00u9","confirm":true}`, http.StatusForbidden, "forbidden"},
		{"unknown", "/v1/tools/delete_everything", "admin", `{}`, http.StatusNotFound, "unknown_operation"},
		{"upstream", "/v1/tools/unsuspend_user_confirm", "admin", `{"userId":"00u9","confirm":true}`, http.StatusBadGateway, "E0000007"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := call(t, h, http.MethodPost, tt.path, tt.role, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, out["error"].(map[string]interface{})["code"])
		})
	}

	// в провайдер ушел только upstream-кейс
	assert.Equal(t, []string{"POST /api/v1/users/00u9/lifecycle/unsuspend"}, f.Hits())
}

func TestListToolsFiltersByRole(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	h := newHTTP(f, HTTPOptions{})

	names := func(role string) []string {
		rec, out := call(t, h, http.MethodGet, "/v1/tools", role, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res []string
		for _, v := range out["tools"].([]interface{}) {
			res = append(res, v.(map[string]interface{})["name"].(string))
		}
		return res
	}

	assert.Equal(t, []string{"get_user_by_email", "search_users", "list_groups", "list_apps", "system_log"}, names("analyst"))
	assert.Equal(t, names("analyst"), names("intern"), "unknown role sees the default role's tools")

	helpdesk := names("helpdesk")
	assert.Contains(t, helpdesk, "reset_password_confirm")
	assert.NotContains(t, helpdesk, "deactivate_user_confirm")
	assert.Len(t, names("admin"), 21)
}

type fakeAuditRepo struct {
	got postgres.Filter
}

func (r *fakeAuditRepo) FetchLogs(ctx context.Context, f postgres.Filter) ([]audit.Record, error) {
	r.got = f
	if f.Tool == "broken" {
		return nil, errors.New("db down")
	}
	return []audit.Record{{ID: "a1", Tool: f.Tool, OK: true}}, nil
}

func TestAuditEndpointIsAdminOnly(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	repo := &fakeAuditRepo{}
	h := newHTTP(f, HTTPOptions{Audit: NewAuditHandler(repo, zap.NewNop())})

	rec, _ := call(t, h, http.MethodGet, "/v1/audit?tool=suspend_user_confirm", "helpdesk", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := call(t, h, http.MethodGet, "/v1/audit?tool=suspend_user_confirm&caller=ops&limit=5", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, postgres.Filter{Tool: "suspend_user_confirm", Caller: "ops", Limit: 5}, repo.got)
	assert.Len(t, out["records"], 1)

	rec, _ = call(t, h, http.MethodGet, "/v1/audit?tool=broken", "admin", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimitPerCaller(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	h := newHTTP(f, HTTPOptions{RateLimit: 2})

	for i := 0; i < 2; i++ {
		rec, _ := call(t, h, http.MethodGet, "/v1/tools", "analyst", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, out := call(t, h, http.MethodGet, "/v1/tools", "analyst", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", out["error"].(map[string]interface{})["code"])
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	reg := prometheus.NewRegistry()
	NewMetrics(reg).ObserveBreaker(true)
	h := newHTTP(f, HTTPOptions{Gatherer: reg})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID), "correlation id is generated when absent")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `idpgw_circuit_breaker_state{connector_id="okta"} 1`)
}
