package grpc

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/astro-web3/oauthgate/internal/app/authz"
	"github.com/astro-web3/oauthgate/pkg/logger"
	"github.com/astro-web3/oauthgate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AdminServiceName = "oauthgate.admin.v1.AdminService"

	APIKeyCacheSizeProcedure  = "/" + AdminServiceName + "/ApiKeyCacheSize"
	APIKeyCacheClearProcedure = "/" + AdminServiceName + "/ApiKeyCacheClear"
)

// AdminHandler serves the API-key cache operations over Connect, gRPC and
// gRPC-Web.
type AdminHandler struct {
	appService authz.Service
}

func NewAdminHandler(appService authz.Service) *AdminHandler {
	return &AdminHandler{appService: appService}
}

func (h *AdminHandler) APIKeyCacheSize(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[wrapperspb.Int64Value], error) {
	ctx, span := tracer.Start(ctx, "transport.grpc.APIKeyCacheSize")
	defer span.End()

	n, err := h.appService.CacheSize(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	span.SetAttributes(attribute.Int("apikey_cache.size", n))
	return connect.NewResponse(wrapperspb.Int64(int64(n))), nil
}

func (h *AdminHandler) APIKeyCacheClear(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[wrapperspb.Int64Value], error) {
	ctx, span := tracer.Start(ctx, "transport.grpc.APIKeyCacheClear")
	defer span.End()

	n, err := h.appService.ClearCache(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	logger.InfoContext(ctx, "api key cache cleared over rpc", slog.Int("deleted", n))
	return connect.NewResponse(wrapperspb.Int64(int64(n))), nil
}
