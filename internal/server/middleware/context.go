package middleware

import (
	"context"
)

type contextKey string

const (
	ContextKeyOperator contextKey = "operator"
	ContextKeyUserRole contextKey = "role"
)

func OperatorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyOperator).(string)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}
