package middleware

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/halloran/castellan/internal/services/access"
)

const (
	userIDHeader     = "x-user-id"
	businessIDHeader = "x-business-id"
	resourceIDHeader = "x-resource-id"
)

// UnaryServerInterceptor returns a gRPC interceptor enforcing the
// permission mapped to each full method name in routes. Methods without a
// mapping pass through unchecked.
func UnaryServerInterceptor(service *access.Service, routes map[string]string, logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		permission, guarded := routes[info.FullMethod]
		if !guarded {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		userID := firstValue(md, userIDHeader)
		if userID == "" {
			return nil, status.Error(codes.Unauthenticated, "missing caller identity")
		}

		c := access.Context{
			BusinessID: firstValue(md, businessIDHeader),
			ResourceID: firstValue(md, resourceIDHeader),
		}
		ok, err := service.HasPermission(ctx, userID, permission, c)
		if err != nil {
			logger.Error("permission check failed",
				zap.String("method", info.FullMethod),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return nil, status.Error(codes.Internal, "permission check failed")
		}
		if !ok {
			return nil, status.Errorf(codes.PermissionDenied, "missing permission %s", permission)
		}
		return handler(ctx, req)
	}
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
