package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

// Sink — дополнительный приемник записей (БД, шина). Вызов не должен блокировать.
type Sink interface {
	Log(rec Record)
}

// RoleResolver нормализует роль из контекста вызова.
type RoleResolver interface {
	Resolve(role string) domain.Role
}

// Entry — то, что сообщает вызывающий код об одном вызове.
type Entry struct {
	Tool          string
	Inputs        interface{}
	Result        interface{}
	Err           error
	OktaRequestID string
	Duration      time.Duration
}

// Recorder пишет ровно одну запись на вызов: синхронно в zap, затем
// отдает копию синкам (fire-and-forget).
type Recorder struct {
	logger *zap.Logger
	roles  RoleResolver
	sinks  []Sink
	now    func() time.Time
}

func NewRecorder(logger *zap.Logger, roles RoleResolver, sinks ...Sink) *Recorder {
	return &Recorder{
		logger: logger.With(zap.String("mod", "audit")),
		roles:  roles,
		sinks:  sinks,
		now:    time.Now,
	}
}

type coder interface {
	Code() string
}

// Audit никогда не паникует наружу: сбой санитизации или сериализации
// не должен подменять результат или ошибку самой операции.
func (r *Recorder) Audit(ctx context.Context, e Entry) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("audit record dropped", zap.String("tool", e.Tool), zap.Any("panic", p))
		}
	}()

	rec := r.build(ctx, e)

	r.logger.Info("audit",
		zap.String("id", rec.ID),
		zap.Time("timestamp", rec.Timestamp),
		zap.String("correlation_id", rec.CorrelationID),
		zap.String("tool", rec.Tool),
		zap.String("caller", rec.Caller),
		zap.String("role", rec.Role),
		zap.Any("inputs", rec.Inputs),
		zap.Any("result", rec.Result),
		zap.Any("error", rec.Error),
		zap.Bool("ok", rec.OK),
		zap.String("okta_request_id", rec.OktaRequestID),
		zap.Int64("duration_ms", rec.DurationMs),
	)

	for _, s := range r.sinks {
		s.Log(rec)
	}
}

func (r *Recorder) build(ctx context.Context, e Entry) Record {
	inv := domain.InvocationFrom(ctx)

	correlationID := inv.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	caller := inv.Caller
	if caller == "" {
		caller = "unknown"
	}
	role := string(domain.RoleAnalyst)
	if r.roles != nil {
		role = string(r.roles.Resolve(inv.CallerRole))
	}

	rec := Record{
		ID:            uuid.New().String(),
		Timestamp:     r.now().UTC(),
		CorrelationID: correlationID,
		Tool:          e.Tool,
		Caller:        caller,
		Role:          role,
		Inputs:        safe(func() interface{} { return SanitizeInputs(e.Inputs) }),
		OK:            e.Err == nil,
		OktaRequestID: e.OktaRequestID,
		DurationMs:    e.Duration.Milliseconds(),
	}

	if e.Result != nil {
		rec.Result = safe(func() interface{} { return SanitizeResult(e.Result) })
	}

	if e.Err != nil {
		rec.Error = &RecordError{Message: e.Err.Error()}
		var c coder
		if errors.As(e.Err, &c) {
			rec.Error.Code = c.Code()
		}
	}
	return rec
}

// safe выполняет санитизацию; при панике в запись попадает заглушка, а не сырые данные.
func safe(fn func() interface{}) (out interface{}) {
	defer func() {
		if p := recover(); p != nil {
			out = fmt.Sprintf("<unserializable: %v>", p)
		}
	}()
	return fn()
}
