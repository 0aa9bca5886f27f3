package engine

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

const HeaderCorrelationID = "X-Correlation-ID"

// TracingMiddleware инициализирует correlation id для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Пришел от клиента/прокси — используем его
		correlationID := r.Header.Get(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		inv := domain.InvocationFrom(r.Context())
		inv.CorrelationID = correlationID
		ctx := domain.WithInvocation(r.Context(), inv)

		// Клиент тоже должен знать ID своего запроса
		w.Header().Set(HeaderCorrelationID, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
