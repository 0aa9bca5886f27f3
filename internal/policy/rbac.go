package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

// Статический allow-лист. Для каждой деструктивной операции перечислены и preview,
// и исполняющая "_confirm"-операция: guard проверяет именно имя вызванной операции.
var defaultAllowList = map[domain.Role][]string{
	domain.RoleAnalyst: readTools,
	domain.RoleHelpdesk: concat(readTools, withConfirm(
		"suspend_user",
		"unsuspend_user",
		"clear_user_sessions",
		"add_user_to_group",
		"remove_user_from_group",
		"reset_password",
	)),
	domain.RoleAdmin: concat(readTools, withConfirm(
		"suspend_user",
		"unsuspend_user",
		"deactivate_user",
		"reactivate_user",
		"clear_user_sessions",
		"add_user_to_group",
		"remove_user_from_group",
		"reset_password",
	)),
}

var readTools = []string{
	"get_user_by_email",
	"search_users",
	"list_groups",
	"list_apps",
	"system_log",
}

// ConfirmSuffix — суффикс исполняющей половины пары preview/execute.
const ConfirmSuffix = "_confirm"

func withConfirm(names ...string) []string {
	out := make([]string, 0, len(names)*2)
	for _, n := range names {
		out = append(out, n, n+ConfirmSuffix)
	}
	return out
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// RolePolicy — неизменяемое после создания отображение роль -> множество операций.
type RolePolicy struct {
	allow       map[domain.Role]map[string]struct{}
	defaultRole domain.Role
}

// NewRolePolicy строит политику из allow-листов. Пустая карта означает встроенный набор.
func NewRolePolicy(lists map[domain.Role][]string) *RolePolicy {
	if len(lists) == 0 {
		lists = defaultAllowList
	}
	p := &RolePolicy{
		allow:       make(map[domain.Role]map[string]struct{}, len(lists)),
		defaultRole: domain.RoleAnalyst,
	}
	for role, ops := range lists {
		set := make(map[string]struct{}, len(ops))
		for _, op := range ops {
			set[op] = struct{}{}
		}
		p.allow[role] = set
	}
	return p
}

// Default — политика со встроенными allow-листами.
func Default() *RolePolicy { return NewRolePolicy(nil) }

// DefaultRole — роль с минимальными правами.
func (p *RolePolicy) DefaultRole() domain.Role { return p.defaultRole }

// IsValid сообщает, известна ли роль политике.
func (p *RolePolicy) IsValid(role string) bool {
	_, ok := p.allow[domain.Role(role)]
	return ok
}

// Resolve никогда не падает: пустая или неизвестная роль деградирует до дефолтной.
func (p *RolePolicy) Resolve(role string) domain.Role {
	if !p.IsValid(role) {
		return p.defaultRole
	}
	return domain.Role(role)
}

// Allows — O(1) проверка членства.
func (p *RolePolicy) Allows(role domain.Role, op string) bool {
	_, ok := p.allow[role][op]
	return ok
}

// Allowed возвращает отсортированный allow-лист роли.
func (p *RolePolicy) Allowed(role domain.Role) []string {
	set := p.allow[role]
	out := make([]string, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Roles возвращает все известные роли.
func (p *RolePolicy) Roles() []domain.Role {
	out := make([]domain.Role, 0, len(p.allow))
	for r := range p.allow {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate проверяет ссылочную целостность: каждая операция из allow-листов
// должна существовать в каталоге. Вызывается один раз при старте.
func (p *RolePolicy) Validate(exists func(name string) bool) error {
	var missing []string
	for _, role := range p.Roles() {
		for _, op := range p.Allowed(role) {
			if !exists(op) {
				missing = append(missing, fmt.Sprintf("%s:%s", role, op))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("policy references unknown operations: %s", strings.Join(missing, ", "))
	}
	return nil
}
