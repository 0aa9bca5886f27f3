package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/idp-admin-gateway/internal/audit"
	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/policy"
	"github.com/xela07ax/idp-admin-gateway/internal/tools"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type memorySink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memorySink) Log(rec audit.Record) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
}

func (m *memorySink) Records() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.records...)
}

type fixture struct {
	upstream *httptest.Server
	hits     []string
	mu       sync.Mutex
	sink     *memorySink
	gateway  *Gateway
	metrics  *Metrics
	reg      *prometheus.Registry
}

// newFixture поднимает фейковый Okta API и собирает шлюз поверх настоящего клиента.
func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{sink: &memorySink{}}
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits = append(f.hits, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		w.Header().Set("X-Okta-Request-Id", "okta-req-1")
		handler(w, r)
	}))
	t.Cleanup(f.upstream.Close)

	logger := zap.NewNop()
	client := okta.NewClient(okta.Config{BaseURL: f.upstream.URL + "/api/v1"}, staticToken("tok"), logger)
	p := policy.Default()
	catalog := tools.NewCatalog(tools.Deps{
		IdP:     client,
		Guard:   policy.NewGuard(p),
		Auditor: audit.NewRecorder(logger, p, f.sink),
		Clock:   time.Now,
	})
	require.NoError(t, p.Validate(catalog.Has))

	f.reg = prometheus.NewRegistry()
	f.metrics = NewMetrics(f.reg)
	client.ObserveRateLimit(f.metrics.ObserveRateLimit)
	f.gateway = NewGateway(catalog, p, f.metrics, logger)
	return f
}

func (f *fixture) Hits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

// scrape возвращает метрики в текстовом формате экспозиции.
func (f *fixture) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(f.reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
