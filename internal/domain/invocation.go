package domain

import "context"

// Invocation — данные конкретного вызова операции. Живет ровно один запрос
// и дальше записи аудита никуда не сохраняется.
type Invocation struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Caller        string `json:"caller,omitempty"`
	// CallerRole хранится как есть; нормализацию делает policy.RolePolicy.
	CallerRole string `json:"caller_role,omitempty"`
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const invocationKey ctxKey = "invocation"

// WithInvocation кладет данные вызова в контекст.
func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey, inv)
}

// InvocationFrom безопасно достает данные вызова. Отсутствие — не ошибка:
// возвращается пустая структура, потребители подставляют свои дефолты.
func InvocationFrom(ctx context.Context) Invocation {
	if ctx == nil {
		return Invocation{}
	}
	if inv, ok := ctx.Value(invocationKey).(Invocation); ok {
		return inv
	}
	return Invocation{}
}
