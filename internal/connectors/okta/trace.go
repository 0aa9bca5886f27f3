package okta

import (
	"context"
	"sync"
)

// RequestTrace собирает ID запросов к IdP в рамках одного вызова операции,
// чтобы аудит мог сослаться на X-Okta-Request-Id.
type RequestTrace struct {
	mu  sync.Mutex
	ids []string
}

type traceKey struct{}

func WithRequestTrace(ctx context.Context) (context.Context, *RequestTrace) {
	t := &RequestTrace{}
	return context.WithValue(ctx, traceKey{}, t), t
}

func traceFrom(ctx context.Context) *RequestTrace {
	t, _ := ctx.Value(traceKey{}).(*RequestTrace)
	return t
}

func (t *RequestTrace) add(id string) {
	if t == nil || id == "" {
		return
	}
	t.mu.Lock()
	t.ids = append(t.ids, id)
	t.mu.Unlock()
}

// Last — ID последнего запроса (пусто, если запросов не было).
func (t *RequestTrace) Last() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ids) == 0 {
		return ""
	}
	return t.ids[len(t.ids)-1]
}
