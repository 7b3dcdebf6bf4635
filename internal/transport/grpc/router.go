package grpc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// NewRouter returns the path prefix and handler of the admin service.
func NewRouter(handler *AdminHandler) (string, http.Handler) {
	opts := connect.WithInterceptors(
		recoveryInterceptor(),
		loggingInterceptor(),
	)

	mux := http.NewServeMux()
	mux.Handle(APIKeyCacheSizeProcedure, connect.NewUnaryHandler(
		APIKeyCacheSizeProcedure,
		handler.APIKeyCacheSize,
		opts,
	))
	mux.Handle(APIKeyCacheClearProcedure, connect.NewUnaryHandler(
		APIKeyCacheClearProcedure,
		handler.APIKeyCacheClear,
		opts,
	))

	return "/" + AdminServiceName + "/", mux
}

// AdminClient calls the admin service.
type AdminClient struct {
	size  *connect.Client[emptypb.Empty, wrapperspb.Int64Value]
	clear *connect.Client[emptypb.Empty, wrapperspb.Int64Value]
}

func NewAdminClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AdminClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &AdminClient{
		size:  connect.NewClient[emptypb.Empty, wrapperspb.Int64Value](httpClient, baseURL+APIKeyCacheSizeProcedure, opts...),
		clear: connect.NewClient[emptypb.Empty, wrapperspb.Int64Value](httpClient, baseURL+APIKeyCacheClearProcedure, opts...),
	}
}

func (c *AdminClient) APIKeyCacheSize(ctx context.Context) (int64, error) {
	resp, err := c.size.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return 0, fmt.Errorf("api key cache size: %w", err)
	}
	return resp.Msg.GetValue(), nil
}

func (c *AdminClient) APIKeyCacheClear(ctx context.Context) (int64, error) {
	resp, err := c.clear.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return 0, fmt.Errorf("api key cache clear: %w", err)
	}
	return resp.Msg.GetValue(), nil
}
