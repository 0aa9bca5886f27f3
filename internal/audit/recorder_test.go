package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
	"github.com/xela07ax/idp-admin-gateway/internal/policy"
)

type memorySink struct {
	mu      sync.Mutex
	records []Record
}

func (m *memorySink) Log(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *memorySink) all() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

type codedErr struct{}

func (codedErr) Error() string { return "upstream said no" }
func (codedErr) Code() string  { return "E0000007" }

func newTestRecorder() (*Recorder, *memorySink, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := &memorySink{}
	return NewRecorder(zap.New(core), policy.Default(), sink), sink, logs
}

func TestAuditRedactsPasswordAndKeepsUserID(t *testing.T) {
	rec, sink, logs := newTestRecorder()

	rec.Audit(context.Background(), Entry{
		Tool:   "reset_password_confirm",
		Inputs: map[string]interface{}{"userId": "u1", "password": "secret"},
	})

	records := sink.all()
	require.Len(t, records, 1)
	inputs := records[0].Inputs.(map[string]interface{})
	assert.Equal(t, "u1", inputs["userId"])
	assert.Equal(t, Redacted, inputs["password"])

	require.Equal(t, 1, logs.FilterMessage("audit").Len())
}

func TestAuditRedactsResultFields(t *testing.T) {
	rec, sink, _ := newTestRecorder()

	rec.Audit(context.Background(), Entry{
		Tool:   "reset_password_confirm",
		Inputs: map[string]interface{}{"userId": "u1", "confirm": true},
		Result: domain.ActionResult{OK: true, Message: "Password reset for user u1", TempPassword: "Xy9-temp"},
	})

	r := sink.all()[0]
	result := r.Result.(map[string]interface{})
	assert.Equal(t, Redacted, result["tempPassword"])
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, true, r.Inputs.(map[string]interface{})["confirm"])
}

func TestAuditNonObjectInputsPassThrough(t *testing.T) {
	rec, sink, _ := newTestRecorder()

	rec.Audit(context.Background(), Entry{Tool: "search_users", Inputs: "password"})
	rec.Audit(context.Background(), Entry{Tool: "search_users", Inputs: []interface{}{"token"}})

	records := sink.all()
	require.Len(t, records, 2)
	assert.Equal(t, "password", records[0].Inputs)
	assert.Equal(t, []interface{}{"token"}, records[1].Inputs)
}

func TestAuditResolvesContext(t *testing.T) {
	rec, sink, _ := newTestRecorder()

	ctx := domain.WithInvocation(context.Background(), domain.Invocation{
		CorrelationID: "corr-1",
		Caller:        "alice@example.com",
		CallerRole:    "helpdesk",
	})
	rec.Audit(ctx, Entry{Tool: "list_groups", Duration: 42 * time.Millisecond, OktaRequestID: "req-9"})
	rec.Audit(context.Background(), Entry{Tool: "list_groups"})

	records := sink.all()
	require.Len(t, records, 2)

	assert.Equal(t, "corr-1", records[0].CorrelationID)
	assert.Equal(t, "alice@example.com", records[0].Caller)
	assert.Equal(t, "helpdesk", records[0].Role)
	assert.Equal(t, int64(42), records[0].DurationMs)
	assert.Equal(t, "req-9", records[0].OktaRequestID)
	assert.True(t, records[0].OK)

	assert.NotEmpty(t, records[1].CorrelationID)
	assert.Equal(t, "unknown", records[1].Caller)
	assert.Equal(t, "analyst", records[1].Role)
}

func TestAuditRecordsErrorWithCode(t *testing.T) {
	rec, sink, _ := newTestRecorder()

	rec.Audit(context.Background(), Entry{Tool: "suspend_user_confirm", Err: codedErr{}})
	rec.Audit(context.Background(), Entry{Tool: "suspend_user_confirm", Err: errors.New("boom")})

	records := sink.all()
	require.Len(t, records, 2)
	assert.False(t, records[0].OK)
	assert.Equal(t, "upstream said no", records[0].Error.Message)
	assert.Equal(t, "E0000007", records[0].Error.Code)
	assert.Empty(t, records[1].Error.Code)
	assert.Nil(t, records[0].Result)
}

type exploding struct{}

func (exploding) MarshalJSON() ([]byte, error) { panic("cannot encode") }

func TestAuditNeverPanics(t *testing.T) {
	rec, sink, _ := newTestRecorder()

	assert.NotPanics(t, func() {
		rec.Audit(context.Background(), Entry{Tool: "list_apps", Inputs: exploding{}, Result: exploding{}})
	})
	require.Len(t, sink.all(), 1)
}
