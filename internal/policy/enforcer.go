package policy

import (
	"context"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

// Enforcer — точка принятия решения для каждого вызова.
type Enforcer interface {
	EnsureAllowed(ctx context.Context, op string) error
}

// Guard сверяет роль вызывающего с allow-листом. Не логирует:
// запись решения — забота аудита, который вызывается после проверки.
type Guard struct {
	policy *RolePolicy
}

func NewGuard(p *RolePolicy) *Guard {
	return &Guard{policy: p}
}

func (g *Guard) EnsureAllowed(ctx context.Context, op string) error {
	role := g.policy.Resolve(domain.InvocationFrom(ctx).CallerRole)
	if g.policy.Allows(role, op) {
		return nil
	}
	return &domain.AuthorizationError{
		Role:      role,
		Operation: op,
		Allowed:   g.policy.Allowed(role),
	}
}

// Policy отдает политику для остальных слоев (резолв роли в аудите, список инструментов).
func (g *Guard) Policy() *RolePolicy { return g.policy }
