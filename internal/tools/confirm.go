package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
	"github.com/xela07ax/idp-admin-gateway/internal/policy"
)

// Action — мутирующее действие над IdP.
type Action[T any] func(ctx context.Context, in T) (interface{}, error)

// NewConfirmationPair строит пару операций для деструктивного действия:
//
//   - name          — preview: ничего не проверяет и не исполняет, только объясняет,
//     как подтвердить вызов;
//   - name_confirm  — execute: схема действия + confirm:true, затем guard по
//     собственному имени, действие и аудит (в том числе при ошибке).
func NewConfirmationPair[T any](d Deps, name, description string, action Action[T]) (preview, execute *Operation) {
	confirmName := name + policy.ConfirmSuffix

	preview = &Operation{
		Name: name,
		Description: fmt.Sprintf("Destructive action. First call '%s' to get confirmation message; then call '%s' with {confirm:true}.",
			name, confirmName),
		Kind:        KindPreview,
		Destructive: true,
		Invoke: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			if _, _, err := decode[previewInput](name, raw); err != nil {
				return nil, err
			}
			return domain.ConfirmationRequest{
				ConfirmationRequired: true,
				Message:              fmt.Sprintf("Call %s with { ...args, confirm: true } to execute.", confirmName),
			}, nil
		},
	}

	execute = &Operation{
		Name:        confirmName,
		Description: "CONFIRMED execution of " + description,
		Kind:        KindExecute,
		Destructive: true,
		Invoke: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			in, args, err := decode[T](confirmName, raw)
			if err != nil {
				return nil, err
			}
			if _, _, err := decode[confirmation](confirmName, raw); err != nil {
				return nil, err
			}
			if args["confirm"] != true {
				return nil, &domain.ValidationError{Operation: confirmName, Field: "confirm", Reason: "must be literally true"}
			}
			return d.run(ctx, confirmName, args, func(ctx context.Context) (interface{}, error) {
				return action(ctx, in)
			})
		},
	}
	return preview, execute
}
