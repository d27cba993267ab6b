package utils

import (
	"context"

	"github.com/precifix/costing_backend/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
