package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
	"github.com/xela07ax/idp-admin-gateway/internal/infra/auth"
)

// UnaryAuthInterceptor собирает Invocation из метаданных gRPC вызова.
// С validator проверяется bearer JWT, без него берутся x-caller / x-caller-role (dev).
func UnaryAuthInterceptor(validator auth.TokenValidator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		inv := domain.Invocation{CorrelationID: first(md, "x-correlation-id")}
		if inv.CorrelationID == "" {
			inv.CorrelationID = uuid.New().String()
		}

		if validator != nil {
			// В gRPC заголовки в нижнем регистре
			token := first(md, "authorization")
			if token == "" {
				return nil, status.Error(codes.Unauthenticated, "missing access token")
			}
			claims, err := validator.VerifyToken(token)
			if err != nil {
				logger.Warn("auth failure", zap.String("method", info.FullMethod), zap.Error(err))
				return nil, status.Error(codes.Unauthenticated, "invalid access token")
			}
			inv.Caller = claims.Identity()
			inv.CallerRole = claims.Role
		} else {
			inv.Caller = first(md, "x-caller")
			inv.CallerRole = first(md, "x-caller-role")
		}

		_ = grpc.SetHeader(ctx, metadata.Pairs("x-correlation-id", inv.CorrelationID))
		return handler(domain.WithInvocation(ctx, inv), req)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
