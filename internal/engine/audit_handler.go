package engine

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/idp-admin-gateway/internal/audit"
	"github.com/xela07ax/idp-admin-gateway/internal/repository/postgres"
)

// AuditLogProvider описывает контракт для чтения данных аудита.
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, f postgres.Filter) ([]audit.Record, error)
}

type AuditHandler struct {
	repo   AuditLogProvider
	logger *zap.Logger
}

func NewAuditHandler(repo AuditLogProvider, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, logger: logger.Named("audit-api")}
}

// GetLogs возвращает записи аудита с фильтрацией
// GET /v1/audit?tool=...&caller=...&correlation_id=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := h.repo.FetchLogs(r.Context(), postgres.Filter{
		Tool:          q.Get("tool"),
		Caller:        q.Get("caller"),
		CorrelationID: q.Get("correlation_id"),
		Limit:         queryInt(r, "limit"),
	})
	if err != nil {
		h.logger.Error("fetch audit logs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "internal", Message: "failed to fetch audit logs"}})
		return
	}
	if logs == nil {
		logs = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": logs})
}
