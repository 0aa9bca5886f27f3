package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// В сообщениях об ошибках используем JSON-имена полей
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type EmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

type SearchUsersInput struct {
	Query  string `json:"query" validate:"required"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE DEPROVISIONED LOCKED_OUT PASSWORD_EXPIRED PROVISIONED RECOVERY STAGED SUSPENDED"`
	Limit  *int   `json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	After  string `json:"after,omitempty"`
}

type ListQueryInput struct {
	Query string `json:"query,omitempty"`
	Limit *int   `json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	After string `json:"after,omitempty"`
}

type LogQueryInput struct {
	Query string `json:"query,omitempty"`
	Since string `json:"since,omitempty"`
	Until string `json:"until,omitempty"`
	Limit *int   `json:"limit,omitempty" validate:"omitempty,min=1,max=1000"`
	After string `json:"after,omitempty"`
}

type UserIDInput struct {
	UserID string `json:"userId" validate:"required"`
}

type SuspendUserInput struct {
	UserID string `json:"userId" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

type UserGroupInput struct {
	UserID  string `json:"userId" validate:"required"`
	GroupID string `json:"groupId" validate:"required"`
}

// confirmation — обязательное подтверждение: поле confirm строго равно true.
// false и отсутствие поля отсекает required, любой не-bool — декодер.
type confirmation struct {
	Confirm bool `json:"confirm" validate:"required"`
}

type previewInput struct {
	Preview *bool `json:"preview,omitempty"`
}

// decode разбирает и валидирует вход. Вторым значением возвращается копия
// входа как объекта — она уходит в аудит.
func decode[T any](op string, raw json.RawMessage) (T, map[string]interface{}, error) {
	var in T
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return in, nil, &domain.ValidationError{Operation: op, Reason: "input must be a JSON object"}
	}

	// encoding/json сопоставляет ключи без учета регистра: "Confirm" попал бы в confirm.
	// Принимаем только точные имена полей.
	if err := exactKeys(op, args, reflect.TypeOf(in)); err != nil {
		return in, nil, err
	}

	if err := json.Unmarshal(raw, &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return in, nil, &domain.ValidationError{
				Operation: op,
				Field:     typeErr.Field,
				Reason:    fmt.Sprintf("must be of type %s", typeErr.Type),
			}
		}
		return in, nil, &domain.ValidationError{Operation: op, Reason: err.Error()}
	}

	if err := validate.Struct(in); err != nil {
		return in, nil, toValidationError(op, err)
	}
	return in, args, nil
}

func exactKeys(op string, args map[string]interface{}, t reflect.Type) error {
	if t.Kind() != reflect.Struct {
		return nil
	}
	var names []string
	for i := 0; i < t.NumField(); i++ {
		if name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			names = append(names, name)
		}
	}
	for key := range args {
		for _, name := range names {
			if key != name && strings.EqualFold(key, name) {
				return &domain.ValidationError{
					Operation: op,
					Field:     key,
					Reason:    fmt.Sprintf("is not recognized, field names are case-sensitive (expected '%s')", name),
				}
			}
		}
	}
	return nil
}

func toValidationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Operation: op, Reason: err.Error()}
	}
	fe := verrs[0]
	return &domain.ValidationError{Operation: op, Field: fe.Field(), Reason: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Bool {
			return "must be literally true"
		}
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "failed validation '" + fe.Tag() + "'"
}
