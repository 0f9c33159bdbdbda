package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dispatch/internal/domain"
	jitostub "solana-dispatch/internal/jito/stub"
	"solana-dispatch/internal/solana"
	"solana-dispatch/internal/solana/stub"
)

var (
	rpcEP    = domain.Endpoint{ID: "rpc-1", URL: "http://rpc-1", Role: domain.RoleDirect}
	engineEP = domain.Endpoint{ID: "jito-1", URL: "http://jito-1", Role: domain.RoleBlockEngine}
)

func TestFromEndpoints_ClientPerRole(t *testing.T) {
	r := FromEndpoints([]domain.Endpoint{rpcEP, engineEP}, nil)

	rpc, err := r.RPC("rpc-1")
	require.NoError(t, err)
	assert.Equal(t, "http://rpc-1", rpc.(*solana.HTTPClient).Endpoint())

	_, err = r.BlockEngine("jito-1")
	require.NoError(t, err)

	_, err = r.RPC("jito-1")
	assert.ErrorIs(t, err, domain.ErrUnknownEndpoint)
	_, err = r.BlockEngine("rpc-1")
	assert.ErrorIs(t, err, domain.ErrUnknownEndpoint)
}

func TestProbe(t *testing.T) {
	r := NewRegistry(nil)
	rpc := stub.NewRPCClient()
	engine := jitostub.NewEngine()
	r.RegisterRPC(rpcEP, rpc)
	r.RegisterBlockEngine(engineEP, engine)

	require.NoError(t, r.Probe(context.Background(), rpcEP))
	require.NoError(t, r.Probe(context.Background(), engineEP))
	assert.Equal(t, 1, rpc.Calls("getHealth"))
	assert.Equal(t, 1, engine.Calls("getTipAccounts"))

	rpc.SetHealthErr(errors.New("behind"))
	assert.Error(t, r.Probe(context.Background(), rpcEP))

	engine.TipErr = errors.New("unavailable")
	assert.Error(t, r.Probe(context.Background(), engineEP))

	unknown := domain.Endpoint{ID: "ghost", Role: domain.RoleDirect}
	assert.ErrorIs(t, r.Probe(context.Background(), unknown), domain.ErrUnknownEndpoint)
}

func TestWS_WithoutURL(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterRPC(rpcEP, stub.NewRPCClient())

	_, ok := r.WS(context.Background(), "rpc-1")
	assert.False(t, ok)
	_, ok = r.WS(context.Background(), "missing")
	assert.False(t, ok)
	assert.NoError(t, r.Close())
}

func wsEndpoint(server *httptest.Server) domain.Endpoint {
	ep := rpcEP
	ep.WSURL = "ws" + strings.TrimPrefix(server.URL, "http")
	return ep
}

func TestWS_FailedDialIsCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	clock := time.Unix(1_700_000_000, 0)
	r := NewRegistry(nil)
	r.now = func() time.Time { return clock }
	r.RegisterRPC(wsEndpoint(server), stub.NewRPCClient())

	_, ok := r.WS(context.Background(), "rpc-1")
	assert.False(t, ok)
	_, ok = r.WS(context.Background(), "rpc-1")
	assert.False(t, ok)
	assert.Equal(t, int32(1), hits.Load())

	clock = clock.Add(WSRetryAfter)
	_, ok = r.WS(context.Background(), "rpc-1")
	assert.False(t, ok)
	assert.Equal(t, int32(2), hits.Load())
}

func TestWS_DialDoesNotBlockLookups(t *testing.T) {
	dialing := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(dialing)
		<-release
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	defer close(release)

	r := NewRegistry(nil)
	r.RegisterRPC(wsEndpoint(server), stub.NewRPCClient())
	r.RegisterBlockEngine(engineEP, jitostub.NewEngine())

	done := make(chan bool, 1)
	go func() {
		_, ok := r.WS(context.Background(), "rpc-1")
		done <- ok
	}()

	select {
	case <-dialing:
	case <-time.After(2 * time.Second):
		t.Fatal("websocket dial never reached the server")
	}

	start := time.Now()
	_, err := r.RPC("rpc-1")
	require.NoError(t, err)
	_, err = r.BlockEngine("jito-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	release <- struct{}{}
	assert.False(t, <-done)
}

func TestWS_ReusesDialedClient(t *testing.T) {
	var hits atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	r := NewRegistry(nil)
	r.RegisterRPC(wsEndpoint(server), stub.NewRPCClient())

	first, ok := r.WS(context.Background(), "rpc-1")
	require.True(t, ok)
	second, ok := r.WS(context.Background(), "rpc-1")
	require.True(t, ok)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), hits.Load())

	require.NoError(t, r.Close())
	_, ok = r.WS(context.Background(), "rpc-1")
	assert.False(t, ok)
}
