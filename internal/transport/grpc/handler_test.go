package grpc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	authzdomain "github.com/astro-web3/oauthgate/internal/domain/authz"
	grpctransport "github.com/astro-web3/oauthgate/internal/transport/grpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAppService struct {
	size     int
	sizeErr  error
	cleared  int
	clearErr error
	panics   bool
}

func (m *mockAppService) Evaluate(context.Context, *authzdomain.Request) *authzdomain.Decision {
	return &authzdomain.Decision{}
}

func (m *mockAppService) CacheSize(context.Context) (int, error) {
	if m.panics {
		panic("boom")
	}
	return m.size, m.sizeErr
}

func (m *mockAppService) ClearCache(context.Context) (int, error) {
	return m.cleared, m.clearErr
}

func newServer(t *testing.T, svc *mockAppService) *grpctransport.AdminClient {
	t.Helper()
	path, handler := grpctransport.NewRouter(grpctransport.NewAdminHandler(svc))
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return grpctransport.NewAdminClient(srv.Client(), srv.URL)
}

func TestAdmin_SizeAndClear(t *testing.T) {
	client := newServer(t, &mockAppService{size: 3, cleared: 3})

	n, err := client.APIKeyCacheSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = client.APIKeyCacheClear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAdmin_Errors(t *testing.T) {
	client := newServer(t, &mockAppService{sizeErr: errors.New("redis down")})

	_, err := client.APIKeyCacheSize(context.Background())
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestAdmin_PanicIsRecovered(t *testing.T) {
	client := newServer(t, &mockAppService{panics: true})

	_, err := client.APIKeyCacheSize(context.Background())
	require.Error(t, err)
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
}
