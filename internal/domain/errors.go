package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrForbidden        = errors.New("forbidden")
	ErrUnknownOperation = errors.New("unknown operation")
)

// ValidationError — входные данные не прошли схему. Возвращается до проверки
// прав и до любого сетевого вызова.
type ValidationError struct {
	Operation string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input for %s: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("invalid input for %s: field '%s' %s", e.Operation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func (e *ValidationError) Code() string { return "invalid_input" }

// AuthorizationError — роли не разрешена операция. Сообщение перечисляет allow-лист роли.
type AuthorizationError struct {
	Role      Role
	Operation string
	Allowed   []string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role '%s' is not allowed to use tool '%s'. Allowed tools for this role: %s",
		e.Role, e.Operation, strings.Join(e.Allowed, ", "))
}

func (e *AuthorizationError) Unwrap() error { return ErrForbidden }

func (e *AuthorizationError) Code() string { return "forbidden" }

// ConfigError — не хватает обязательных настроек. Процесс завершается до старта серверов.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}
