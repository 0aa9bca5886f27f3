package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/domain"
	"github.com/xela07ax/idp-admin-gateway/internal/policy"
	"github.com/xela07ax/idp-admin-gateway/internal/tools"
)

// Gateway — единая точка вызова операций для HTTP и gRPC.
type Gateway struct {
	catalog *tools.Catalog
	policy  *policy.RolePolicy
	metrics *Metrics
	logger  *zap.Logger
}

func NewGateway(catalog *tools.Catalog, p *policy.RolePolicy, metrics *Metrics, logger *zap.Logger) *Gateway {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gateway{
		catalog: catalog,
		policy:  p,
		metrics: metrics,
		logger:  logger.Named("gateway"),
	}
}

// Invoke ищет операцию в каталоге и исполняет ее. Права, аудит и подтверждение
// проверяет сама операция.
func (g *Gateway) Invoke(ctx context.Context, name string, raw json.RawMessage) (interface{}, error) {
	start := time.Now()

	op, ok := g.catalog.Lookup(name)
	if !ok {
		g.metrics.ErrorTotal.WithLabelValues("unknown_operation").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownOperation, name)
	}

	result, err := op.Invoke(ctx, raw)

	outcome := Outcome(err)
	g.metrics.TotalRequests.WithLabelValues(name, outcome).Inc()
	g.metrics.RequestDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.ErrorTotal.WithLabelValues(outcome).Inc()
		if outcome == "internal" {
			g.logger.Error("tool invocation failed",
				zap.String("tool", name),
				zap.String("correlation_id", domain.InvocationFrom(ctx).CorrelationID),
				zap.Error(err))
		}
		return nil, err
	}
	return result, nil
}

// Visible возвращает операции, доступные роли вызывающего, в порядке каталога.
func (g *Gateway) Visible(ctx context.Context) []*tools.Operation {
	role := g.policy.Resolve(domain.InvocationFrom(ctx).CallerRole)
	var out []*tools.Operation
	for _, op := range g.catalog.Operations() {
		if g.policy.Allows(role, op.Name) {
			out = append(out, op)
		}
	}
	return out
}

// Outcome классифицирует исход вызова для метрик и транспортов.
func Outcome(err error) string {
	var apiErr *okta.APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrUnknownOperation):
		return "unknown_operation"
	case errors.Is(err, okta.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &apiErr):
		return "upstream"
	}
	return "internal"
}
