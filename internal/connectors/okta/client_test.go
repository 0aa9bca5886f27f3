package okta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func TestClientGetPassesAuthAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/users", r.URL.Path)
		assert.Equal(t, `profile.email eq "a@b.c"`, r.URL.Query().Get("search"))
		w.Header().Set("Link", `<https://x/api/v1/users?after=next1>; rel="next"`)
		w.Header().Set("X-Okta-Request-Id", "req-1")
		w.Write([]byte(`[{"id":"00u1"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/api/v1"}, staticToken("tok"), zap.NewNop())
	ctx, trace := WithRequestTrace(context.Background())

	resp, err := c.Get(ctx, "/users", url.Values{"search": {`profile.email eq "a@b.c"`}})
	require.NoError(t, err)

	var users []map[string]interface{}
	require.NoError(t, resp.Decode(&users))
	assert.Len(t, users, 1)
	assert.Equal(t, "next1", NextCursor(resp.Header.Get("Link")))
	assert.Equal(t, "req-1", trace.Last())
}

func TestClientMapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Okta-Request-Id", "req-404")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorCode":"E0000007","errorSummary":"Not found: Resource not found: 00u9 (User)"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, staticToken("tok"), zap.NewNop())
	ctx, trace := WithRequestTrace(context.Background())

	_, err := c.Post(ctx, "/users/00u9/lifecycle/suspend", nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "E0000007", apiErr.Code())
	assert.Equal(t, "req-404", apiErr.RequestID)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, "req-404", trace.Last())
}

func TestClientWarnsOnLowRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limit-Remaining", "3")
		w.Header().Set("X-Rate-Limit-Reset", "1700000000")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	c := NewClient(Config{BaseURL: srv.URL}, staticToken("tok"), zap.New(core))

	var observed int
	c.ObserveRateLimit(func(remaining int) { observed = remaining })

	_, err := c.Get(context.Background(), "/groups", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, observed)
	assert.Equal(t, 1, logs.FilterMessage("approaching okta rate limit").Len())
}

func TestClientSendsJSONBodyOnPut(t *testing.T) {
	var gotMethod, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, staticToken("tok"), zap.NewNop())
	resp, err := c.Put(context.Background(), "/groups/g1/users/u1", nil, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NoError(t, resp.Decode(&struct{}{}))
}

func TestBreakerOpensOnUpstreamFailuresOnly(t *testing.T) {
	status := http.StatusNotFound
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(status)
		w.Write([]byte(`{"errorCode":"E0000009","errorSummary":"Internal Server Error"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, staticToken("tok"), zap.NewNop())
	var states []bool
	c.ObserveBreaker(func(open bool) { states = append(states, open) })

	// 4xx не размыкают предохранитель
	for i := 0; i < 10; i++ {
		_, err := c.Get(context.Background(), "/users/x", nil)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}

	status = http.StatusInternalServerError
	for i := 0; i < 6; i++ {
		_, err := c.Get(context.Background(), "/users/x", nil)
		require.Error(t, err)
	}
	before := hits

	_, err := c.Get(context.Background(), "/users/x", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, hits, "open breaker does not reach the provider")
	assert.Equal(t, []bool{true}, states)
}
