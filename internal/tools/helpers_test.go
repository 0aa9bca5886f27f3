package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/idp-admin-gateway/internal/audit"
	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/domain"
	"github.com/xela07ax/idp-admin-gateway/internal/policy"
)

type idpCall struct {
	Method string
	Path   string
	Query  url.Values
}

type fakeIdP struct {
	mu      sync.Mutex
	calls   []idpCall
	respond func(call idpCall) (*okta.Response, error)
}

func (f *fakeIdP) record(method, path string, q url.Values) (*okta.Response, error) {
	call := idpCall{Method: method, Path: path, Query: q}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(call)
	}
	return &okta.Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
}

func (f *fakeIdP) Get(ctx context.Context, path string, q url.Values) (*okta.Response, error) {
	return f.record(http.MethodGet, path, q)
}

func (f *fakeIdP) Post(ctx context.Context, path string, q url.Values, body interface{}) (*okta.Response, error) {
	return f.record(http.MethodPost, path, q)
}

func (f *fakeIdP) Put(ctx context.Context, path string, q url.Values, body interface{}) (*okta.Response, error) {
	return f.record(http.MethodPut, path, q)
}

func (f *fakeIdP) Delete(ctx context.Context, path string, q url.Values) (*okta.Response, error) {
	return f.record(http.MethodDelete, path, q)
}

func (f *fakeIdP) Calls() []idpCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]idpCall(nil), f.calls...)
}

type countingGuard struct {
	next  policy.Enforcer
	mu    sync.Mutex
	names []string
}

func (g *countingGuard) EnsureAllowed(ctx context.Context, op string) error {
	g.mu.Lock()
	g.names = append(g.names, op)
	g.mu.Unlock()
	return g.next.EnsureAllowed(ctx, op)
}

func (g *countingGuard) Checked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.names...)
}

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

type harness struct {
	idp     *fakeIdP
	guard   *countingGuard
	sink    *memorySink
	catalog *Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p := policy.Default()
	h := &harness{
		idp:   &fakeIdP{},
		guard: &countingGuard{next: policy.NewGuard(p)},
		sink:  &memorySink{},
	}
	h.catalog = NewCatalog(Deps{
		IdP:     h.idp,
		Guard:   h.guard,
		Auditor: audit.NewRecorder(zap.NewNop(), p, h.sink),
		Clock:   time.Now,
	})
	return h
}

func (h *harness) invoke(t *testing.T, role, name string, input interface{}) (interface{}, error) {
	t.Helper()
	op, ok := h.catalog.Lookup(name)
	if !ok {
		t.Fatalf("operation %s is not registered", name)
	}
	var raw json.RawMessage
	switch v := input.(type) {
	case string:
		raw = json.RawMessage(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal input: %v", err)
		}
		raw = b
	}
	ctx := domain.WithInvocation(context.Background(), domain.Invocation{
		CorrelationID: "corr-test",
		Caller:        "tester@example.com",
		CallerRole:    role,
	})
	return op.Invoke(ctx, raw)
}

func jsonResponse(body string, header http.Header) *okta.Response {
	if header == nil {
		header = http.Header{}
	}
	return &okta.Response{StatusCode: http.StatusOK, Data: json.RawMessage(body), Header: header}
}
